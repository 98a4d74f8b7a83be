package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrWorkerOnline is returned when another live process already holds the
// worker name.
var ErrWorkerOnline = errors.New("worker already online")

type Worker struct {
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	OrdersProcessed int       `json:"orders_processed"`
	LastSeen        time.Time `json:"last_seen"`
}

type KitchenRepositoryInterface interface {
	// RegisterOrFail marks the worker online. A row that is still online and
	// was seen within staleAfter belongs to a live process and is not taken over.
	RegisterOrFail(ctx context.Context, name, wtype string, staleAfter time.Duration) error
	Heartbeat(ctx context.Context, name string) error
	SetOffline(ctx context.Context, name string) error
	IncrementProcessed(ctx context.Context, name string) error
	GetWorker(ctx context.Context, name string) (Worker, error)
}

type KitchenRepository struct {
	db *pgxpool.Pool
}

func NewKitchenRepository(db *pgxpool.Pool) KitchenRepositoryInterface {
	return &KitchenRepository{db: db}
}

func (r *KitchenRepository) RegisterOrFail(ctx context.Context, name, wtype string, staleAfter time.Duration) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO workers (name, type, status, last_seen)
		VALUES ($1, $2, 'online', now())
		ON CONFLICT (name) DO UPDATE
		   SET type = EXCLUDED.type, status = 'online', last_seen = now()
		 WHERE workers.status = 'offline'
		    OR workers.last_seen < now() - make_interval(secs => $3)
	`, name, wtype, staleAfter.Seconds())
	if err != nil {
		return fmt.Errorf("register worker %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrWorkerOnline, name)
	}
	return nil
}

func (r *KitchenRepository) Heartbeat(ctx context.Context, name string) error {
	_, err := r.db.Exec(ctx, `UPDATE workers SET last_seen = now() WHERE name = $1`, name)
	return err
}

func (r *KitchenRepository) SetOffline(ctx context.Context, name string) error {
	_, err := r.db.Exec(ctx, `UPDATE workers SET status = 'offline', last_seen = now() WHERE name = $1`, name)
	return err
}

func (r *KitchenRepository) IncrementProcessed(ctx context.Context, name string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE workers SET orders_processed = orders_processed + 1, last_seen = now()
		 WHERE name = $1
	`, name)
	return err
}

func (r *KitchenRepository) GetWorker(ctx context.Context, name string) (Worker, error) {
	var w Worker
	err := r.db.QueryRow(ctx, `
		SELECT name, type, status, orders_processed, last_seen FROM workers WHERE name = $1
	`, name).Scan(&w.Name, &w.Type, &w.Status, &w.OrdersProcessed, &w.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return Worker{}, fmt.Errorf("worker %s not found", name)
	}
	return w, err
}
