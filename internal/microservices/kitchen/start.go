package kitchen

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/config"
	"pizzeria-system/internal/connections/rabbitmq"
	"pizzeria-system/internal/microservices/kitchen/repository"
	"pizzeria-system/internal/microservices/kitchen/service"
	orderrepo "pizzeria-system/internal/microservices/order/repository"
	orderservice "pizzeria-system/internal/microservices/order/service"
)

// Run consumes kitchen.q until ctx ends. Status changes go through the order
// service, so stock rules, the status log and events stay in one place.
func Run(ctx context.Context, cfg config.KitchenConfig, pool *pgxpool.Pool, rmq *rabbitmq.Client, log *logger.Logger) error {
	orders := orderservice.New(*orderrepo.New(pool), orderservice.NewEventPublisher(rmq), log)
	svc := service.New(*repository.New(pool), orders.OrderService, log, service.Options{
		WorkerName:        cfg.WorkerName,
		HeartbeatInterval: cfg.HeartbeatInterval,
		CookTime:          cfg.CookTime,
	})

	ch, deliveries, err := rmq.Consume(rabbitmq.QueueKitchen, cfg.WorkerName, cfg.Prefetch)
	if err != nil {
		return fmt.Errorf("consume %s: %w", rabbitmq.QueueKitchen, err)
	}
	defer ch.Close()

	log.Info("service_started", map[string]any{
		"worker": cfg.WorkerName, "queue": rabbitmq.QueueKitchen, "prefetch": cfg.Prefetch,
	})
	return svc.KitchenService.Run(ctx, deliveries)
}
