package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"pizzeria-system/internal/connections/rabbitmq"
	"pizzeria-system/internal/microservices/order/domain/dao"
)

const (
	EventOrderCreated  = "order.created"
	EventStatusChanged = "order.status_changed"

	publishTimeout = 5 * time.Second
)

// Publisher is satisfied by *rabbitmq.Client.
type Publisher interface {
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
}

type EventPublisherInterface interface {
	OrderCreated(ctx context.Context, order dao.Order) error
	StatusChanged(ctx context.Context, order dao.Order, from dao.Status, changedBy string) error
}

type EventPublisher struct {
	pub Publisher
}

func NewEventPublisher(pub Publisher) EventPublisherInterface {
	return &EventPublisher{pub: pub}
}

var (
	priorityHigh   = decimal.NewFromInt(100)
	priorityMedium = decimal.NewFromInt(50)
)

// Priority maps an order total onto the 1..10 queue priority range.
func Priority(total decimal.Decimal) uint8 {
	switch {
	case total.GreaterThanOrEqual(priorityHigh):
		return 10
	case total.GreaterThanOrEqual(priorityMedium):
		return 5
	default:
		return 1
	}
}

func (p *EventPublisher) OrderCreated(ctx context.Context, order dao.Order) error {
	items := make([]dao.EventItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, dao.EventItem{ProductID: it.ProductID, Name: it.ProductName, Quantity: it.Quantity})
	}
	evt := dao.OrderEvent{
		Type:         EventOrderCreated,
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		CustomerName: order.CustomerName,
		SaleType:     order.SaleType,
		NewStatus:    order.Status,
		ChangedBy:    "order-service",
		Total:        order.Total,
		Items:        items,
		Timestamp:    time.Now().UTC(),
	}
	return p.send(ctx, rabbitmq.ExchangeOrders, rabbitmq.KeyOrderCreated, evt)
}

// StatusChanged goes to orders_topic for routing to workers and to the
// notifications fanout for customer-facing subscribers.
func (p *EventPublisher) StatusChanged(ctx context.Context, order dao.Order, from dao.Status, changedBy string) error {
	evt := dao.OrderEvent{
		Type:         EventStatusChanged,
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		CustomerName: order.CustomerName,
		SaleType:     order.SaleType,
		OldStatus:    from,
		NewStatus:    order.Status,
		ChangedBy:    changedBy,
		Total:        order.Total,
		Timestamp:    time.Now().UTC(),
	}
	if err := p.send(ctx, rabbitmq.ExchangeOrders, rabbitmq.StatusKey(string(order.Status)), evt); err != nil {
		return err
	}
	return p.send(ctx, rabbitmq.ExchangeNotifications, "", evt)
}

func (p *EventPublisher) send(ctx context.Context, exchange, key string, evt dao.OrderEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", evt.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		MessageId:     uuid.NewString(),
		CorrelationId: evt.OrderNumber,
		Timestamp:     evt.Timestamp,
		Priority:      Priority(evt.Total),
		Type:          evt.Type,
		Headers:       amqp.Table{"x-source": "order-service"},
		Body:          body,
	}
	if err := p.pub.Publish(ctx, exchange, key, msg); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", evt.Type, exchange, err)
	}
	return nil
}

// NopPublisher drops every event. Used when the service runs without a broker.
type NopPublisher struct{}

func (NopPublisher) OrderCreated(context.Context, dao.Order) error { return nil }

func (NopPublisher) StatusChanged(context.Context, dao.Order, dao.Status, string) error { return nil }
