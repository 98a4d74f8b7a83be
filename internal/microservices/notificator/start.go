package notificator

import (
	"context"
	"fmt"

	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/connections/rabbitmq"
	"pizzeria-system/internal/microservices/notificator/service"
)

const consumerTag = "notification-subscriber"

// Run consumes notifications.q until ctx ends.
func Run(ctx context.Context, rmq *rabbitmq.Client, log *logger.Logger) error {
	ch, deliveries, err := rmq.Consume(rabbitmq.QueueNotifications, consumerTag, 10)
	if err != nil {
		return fmt.Errorf("consume %s: %w", rabbitmq.QueueNotifications, err)
	}
	defer ch.Close()

	log.Info("service_started", map[string]any{"queue": rabbitmq.QueueNotifications})
	return service.New(log).NotificatorService.Run(ctx, deliveries)
}
