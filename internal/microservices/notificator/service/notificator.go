package service

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/microservices/order/domain/dao"
)

type NotificatorServiceInterface interface {
	Run(ctx context.Context, deliveries <-chan amqp.Delivery) error
	Notify(d amqp.Delivery) error
}

type NotificatorService struct {
	log *logger.Logger
}

func NewNotificatorService(log *logger.Logger) NotificatorServiceInterface {
	return &NotificatorService{log: log}
}

// Run logs every notification until ctx ends or the broker closes the channel.
func (ns *NotificatorService) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			ns.log.Info("graceful_shutdown", nil)
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("notification deliveries closed")
			}
			ns.settle(d, ns.Notify(d))
		}
	}
}

func (ns *NotificatorService) settle(d amqp.Delivery, err error) {
	var ackErr error
	if err != nil {
		ns.log.Warn("notification_dead_lettered", map[string]any{"message_id": d.MessageId, "reason": err.Error()})
		ackErr = d.Nack(false, false)
	} else {
		ackErr = d.Ack(false)
	}
	if ackErr != nil {
		ns.log.Error("message_settle_failed", ackErr, map[string]any{"message_id": d.MessageId})
	}
}

// Notify renders one status change for the customer. Undecodable messages are
// returned as errors and never redelivered.
func (ns *NotificatorService) Notify(d amqp.Delivery) error {
	var evt dao.OrderEvent
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		return fmt.Errorf("malformed notification: %w", err)
	}
	if evt.OrderNumber == "" || !evt.NewStatus.Valid() {
		return fmt.Errorf("notification without order number or valid status")
	}
	ns.log.Info("notification_received", map[string]any{
		"order_number":  evt.OrderNumber,
		"customer_name": evt.CustomerName,
		"old_status":    string(evt.OldStatus),
		"new_status":    string(evt.NewStatus),
		"changed_by":    evt.ChangedBy,
		"message":       Message(evt),
	})
	return nil
}

// Message is the text a customer would see for the event.
func Message(evt dao.OrderEvent) string {
	switch evt.NewStatus {
	case dao.StatusPending:
		return fmt.Sprintf("Order %s received. Thank you, %s!", evt.OrderNumber, evt.CustomerName)
	case dao.StatusConfirmed:
		return fmt.Sprintf("Order %s is confirmed.", evt.OrderNumber)
	case dao.StatusPreparing:
		return fmt.Sprintf("Order %s is being prepared.", evt.OrderNumber)
	case dao.StatusReady:
		if evt.SaleType == dao.SaleOnline {
			return fmt.Sprintf("Order %s is ready and on its way.", evt.OrderNumber)
		}
		return fmt.Sprintf("Order %s is ready for pickup.", evt.OrderNumber)
	case dao.StatusDelivered:
		return fmt.Sprintf("Order %s was delivered. Enjoy!", evt.OrderNumber)
	case dao.StatusCancelled:
		return fmt.Sprintf("Order %s was cancelled.", evt.OrderNumber)
	}
	return fmt.Sprintf("Order %s is now %s.", evt.OrderNumber, evt.NewStatus)
}
