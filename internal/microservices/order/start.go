package order

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"pizzeria-system/internal/common/httpx"
	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/config"
	"pizzeria-system/internal/connections/rabbitmq"
	"pizzeria-system/internal/microservices/order/handlers"
	"pizzeria-system/internal/microservices/order/repository"
	"pizzeria-system/internal/microservices/order/service"
)

// Run serves the order API until ctx ends.
func Run(ctx context.Context, cfg config.HTTPConfig, pool *pgxpool.Pool, rmq *rabbitmq.Client, log *logger.Logger) error {
	repo := repository.New(pool)

	var events service.EventPublisherInterface = service.NopPublisher{}
	checks := map[string]handlers.HealthCheck{"database": pool.Ping}
	if rmq != nil {
		events = service.NewEventPublisher(rmq)
		checks["rabbitmq"] = func(context.Context) error { return rmq.Ping() }
	} else {
		log.Warn("events_disabled", map[string]any{"reason": "no broker connection"})
	}

	svc := service.New(*repo, events, log)
	h := handlers.New(svc, log, checks)
	router := h.Router(handlers.RouterOptions{
		MaxConcurrency: cfg.MaxConcurrency,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	log.Info("service_started", map[string]any{"port": cfg.Port, "max_concurrent": cfg.MaxConcurrency})
	return httpx.New(fmt.Sprintf(":%d", cfg.Port), router, log).Run(ctx)
}
