package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/microservices/kitchen/repository"
	"pizzeria-system/internal/microservices/order/domain/dao"
)

var (
	ErrRequeue = errors.New("requeue")     // nack(requeue=true)
	ErrDLQ     = errors.New("dead_letter") // nack(requeue=false)

	// ErrDeliveriesClosed means the broker went away; the process should exit
	// non-zero so its supervisor restarts it.
	ErrDeliveriesClosed = errors.New("kitchen deliveries closed")
)

const workerType = "kitchen"

// OrderAdvancer is the slice of the order service the kitchen drives.
type OrderAdvancer interface {
	AdvanceStatus(ctx context.Context, id int64, to dao.Status, changedBy string) (dao.Order, error)
}

type KitchenServiceInterface interface {
	// Run registers the worker and handles deliveries until ctx ends or the
	// delivery channel closes. A closed channel yields ErrDeliveriesClosed.
	Run(ctx context.Context, deliveries <-chan amqp.Delivery) error
	Handle(ctx context.Context, d amqp.Delivery) error
}

type Options struct {
	WorkerName        string
	HeartbeatInterval time.Duration
	CookTime          time.Duration
}

type KitchenService struct {
	workers repository.KitchenRepositoryInterface
	orders  OrderAdvancer
	log     *logger.Logger
	opts    Options
}

func NewKitchenService(workers repository.KitchenRepositoryInterface, orders OrderAdvancer, log *logger.Logger, opts Options) KitchenServiceInterface {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	return &KitchenService{
		workers: workers,
		orders:  orders,
		log:     log.With(map[string]any{"worker": opts.WorkerName}),
		opts:    opts,
	}
}

func (ks *KitchenService) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	if strings.TrimSpace(ks.opts.WorkerName) == "" {
		return fmt.Errorf("worker name is empty: pass --worker-name")
	}

	// a row not refreshed for two heartbeats is left over from a crashed process
	if err := ks.workers.RegisterOrFail(ctx, ks.opts.WorkerName, workerType, 2*ks.opts.HeartbeatInterval); err != nil {
		ks.log.Error("worker_registration_failed", err, nil)
		return err
	}
	ks.log.Info("worker_registered", map[string]any{"type": workerType})

	beatCtx, stopBeat := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ks.heartbeat(beatCtx)
	}()

	closed := ks.consume(ctx, deliveries)
	stopBeat()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ks.workers.SetOffline(shutdownCtx, ks.opts.WorkerName); err != nil {
		ks.log.Error("worker_offline_failed", err, nil)
		return err
	}
	fields := map[string]any{}
	if w, err := ks.workers.GetWorker(shutdownCtx, ks.opts.WorkerName); err == nil {
		fields["orders_processed"] = w.OrdersProcessed
	}
	if closed {
		ks.log.Info("worker_stopped", fields)
		return ErrDeliveriesClosed
	}
	ks.log.Info("graceful_shutdown", fields)
	return nil
}

// consume reports whether it stopped because the delivery channel closed.
func (ks *KitchenService) consume(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case d, ok := <-deliveries:
			if !ok {
				ks.log.Warn("deliveries_closed", nil)
				return true
			}
			ks.settle(d, ks.Handle(ctx, d))
		}
	}
}

func (ks *KitchenService) settle(d amqp.Delivery, err error) {
	var ackErr error
	switch {
	case err == nil:
		ackErr = d.Ack(false)
	case errors.Is(err, ErrDLQ):
		ks.log.Warn("message_dead_lettered", map[string]any{"message_id": d.MessageId, "reason": err.Error()})
		ackErr = d.Nack(false, false)
	default:
		ks.log.Warn("message_requeued", map[string]any{"message_id": d.MessageId, "reason": err.Error()})
		ackErr = d.Nack(false, true)
	}
	if ackErr != nil {
		ks.log.Error("message_settle_failed", ackErr, map[string]any{"message_id": d.MessageId})
	}
}

func (ks *KitchenService) heartbeat(ctx context.Context) {
	t := time.NewTicker(ks.opts.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := ks.workers.Heartbeat(ctx, ks.opts.WorkerName); err != nil {
				ks.log.Error("heartbeat_failed", err, nil)
				continue
			}
			ks.log.Debug("heartbeat_sent", nil)
		}
	}
}

// Handle cooks one confirmed order: confirmed -> preparing, wait, -> ready.
// A redelivered order that is already preparing resumes at the wait.
func (ks *KitchenService) Handle(ctx context.Context, d amqp.Delivery) error {
	var evt dao.OrderEvent
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		return fmt.Errorf("%w: malformed event: %v", ErrDLQ, err)
	}
	if evt.OrderID <= 0 {
		return fmt.Errorf("%w: event without order id", ErrDLQ)
	}
	if evt.NewStatus != dao.StatusConfirmed {
		ks.log.Debug("event_ignored", map[string]any{"order_number": evt.OrderNumber, "status": string(evt.NewStatus)})
		return nil
	}
	log := ks.log.With(map[string]any{"order_id": evt.OrderID, "order_number": evt.OrderNumber})

	_, err := ks.orders.AdvanceStatus(ctx, evt.OrderID, dao.StatusPreparing, ks.opts.WorkerName)
	var terr *dao.InvalidTransitionError
	switch {
	case err == nil:
		log.Debug("order_processing_started", nil)
	case errors.As(err, &terr) && terr.From == dao.StatusPreparing && d.Redelivered:
		log.Info("order_processing_resumed", nil)
	case errors.As(err, &terr), errors.Is(err, dao.ErrOrderNotFound):
		log.Info("order_skipped", map[string]any{"reason": err.Error()})
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrRequeue, err)
	}

	select {
	case <-time.After(ks.opts.CookTime):
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrRequeue, ctx.Err())
	}

	if _, err := ks.orders.AdvanceStatus(ctx, evt.OrderID, dao.StatusReady, ks.opts.WorkerName); err != nil {
		if errors.As(err, &terr) || errors.Is(err, dao.ErrOrderNotFound) {
			log.Info("order_skipped", map[string]any{"reason": err.Error()})
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRequeue, err)
	}
	if err := ks.workers.IncrementProcessed(ctx, ks.opts.WorkerName); err != nil {
		log.Error("worker_counter_failed", err, nil)
	}
	log.Info("order_completed", nil)
	return nil
}
