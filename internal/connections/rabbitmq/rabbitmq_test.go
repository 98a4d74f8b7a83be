package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"default vhost", Config{Host: "mq", Port: 5672, User: "guest", Password: "guest"}, "amqp://guest:guest@mq:5672/%2F"},
		{"tls and custom vhost", Config{Host: "mq", Port: 5671, User: "u", Password: "p", VHost: "pizza", UseTLS: true}, "amqps://u:p@mq:5671/pizza"},
		{"escaped credentials", Config{Host: "mq", Port: 5672, User: "u", Password: "p/w", VHost: "/"}, "amqp://u:p%2Fw@mq:5672/%2F"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.URL())
		})
	}
}

func TestStatusKey(t *testing.T) {
	assert.Equal(t, "order.status.confirmed", StatusKey("confirmed"))
}
