package rabbitmq

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string // default "/"
	UseTLS   bool
}

// Client owns one connection and a publishing channel in confirm mode.
// Consumers get channels of their own.
type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	acks <-chan amqp.Confirmation
	mu   sync.Mutex // serializes Publish so confirms match publishes
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c Config) URL() string {
	vhost := c.VHost
	if vhost == "" {
		vhost = "/"
	}
	scheme := "amqp"
	if c.UseTLS {
		scheme = "amqps"
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s",
		scheme, url.UserPassword(c.User, c.Password).String(), c.Host, c.Port, url.PathEscape(vhost))
}

func Dial(cfg Config) (*Client, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	if cfg.UseTLS {
		conn, err = amqp.DialTLS(cfg.URL(), &tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		conn, err = amqp.Dial(cfg.URL())
	}
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 16))

	return &Client{conn: conn, ch: ch, acks: acks}, nil
}

// DialWithRetry keeps dialing until the broker answers, attempts run out or
// ctx is done.
func DialWithRetry(ctx context.Context, cfg Config, attempts int, delay time.Duration) (*Client, error) {
	var err error
	for i := 1; i <= attempts; i++ {
		var c *Client
		if c, err = Dial(cfg); err == nil {
			return c, nil
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq dial canceled: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("rabbitmq unreachable after %d attempts: %w", attempts, err)
}

func (c *Client) Ping() error {
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// Publish sends msg and waits for the broker's ack or nack.
func (c *Client) Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	tag := c.ch.GetNextPublishSeqNo()
	if err := c.ch.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return err
	}

	for {
		select {
		case conf, ok := <-c.acks:
			if !ok {
				return errors.New("rabbitmq channel closed before confirm")
			}
			// a confirm left over from a publish whose caller gave up
			if conf.DeliveryTag < tag {
				continue
			}
			if conf.Ack {
				return nil
			}
			return errors.New("publish NACK from broker")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Consume opens a dedicated channel with the given prefetch and starts a
// consumer with manual acks. Closing the returned channel stops delivery.
func (c *Client) Consume(queue, consumer string, prefetch int) (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, err
	}
	msgs, err := ch.Consume(queue, consumer, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, err
	}
	return ch, msgs, nil
}
