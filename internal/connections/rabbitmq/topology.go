package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeOrders        = "orders_topic"
	ExchangeNotifications = "notifications_fanout"
	ExchangeDeadLetter    = "dlx"

	QueueKitchen       = "kitchen.q"
	QueueNotifications = "notifications.q"
	QueueDeadLetter    = "dlq"

	KeyOrderCreated = "order.created"
	keyDeadLetter   = "dlq"

	MaxPriority = 10
)

// StatusKey is the orders_topic routing key of a status change.
func StatusKey(status string) string { return "order.status." + status }

// DeclareTopology declares every exchange, queue and binding the services
// use. Declarations are idempotent, so each process calls it on start.
func (c *Client) DeclareTopology() error {
	if c == nil || c.ch == nil {
		return fmt.Errorf("nil channel")
	}
	ch := c.ch

	exchanges := []struct{ name, kind string }{
		{ExchangeOrders, amqp.ExchangeTopic},
		{ExchangeNotifications, amqp.ExchangeFanout},
		{ExchangeDeadLetter, amqp.ExchangeDirect},
	}
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	if _, err := ch.QueueDeclare(QueueKitchen, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    ExchangeDeadLetter,
		"x-dead-letter-routing-key": keyDeadLetter,
		"x-max-priority":            int32(MaxPriority),
	}); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueKitchen, err)
	}
	if _, err := ch.QueueDeclare(QueueNotifications, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    ExchangeDeadLetter,
		"x-dead-letter-routing-key": keyDeadLetter,
	}); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueNotifications, err)
	}
	if _, err := ch.QueueDeclare(QueueDeadLetter, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueDeadLetter, err)
	}

	bindings := []struct{ queue, key, exchange string }{
		{QueueKitchen, StatusKey("confirmed"), ExchangeOrders},
		{QueueNotifications, "", ExchangeNotifications},
		{QueueDeadLetter, keyDeadLetter, ExchangeDeadLetter},
	}
	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}
