package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PIZZERIA_DATABASE_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, 5672, cfg.RabbitMQ.Port)
	assert.Equal(t, "/", cfg.RabbitMQ.VHost)
	assert.Equal(t, 3000, cfg.HTTP.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.Kitchen.HeartbeatInterval)
	assert.False(t, cfg.Tracing.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PIZZERIA_DATABASE_HOST", "db")
	t.Setenv("PIZZERIA_HTTP_PORT", "8080")
	t.Setenv("PIZZERIA_HTTP_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("PIZZERIA_KITCHEN_COOK_TIME", "250ms")
	t.Setenv("PIZZERIA_TRACING_ENDPOINT", "collector:4318")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.Kitchen.CookTime)
	assert.True(t, cfg.Tracing.Enabled())
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("PIZZERIA_HTTP_PORT", "not-a-port")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadLeavesValidationToCaller(t *testing.T) {
	t.Setenv("PIZZERIA_HTTP_PORT", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "http port is out of range")
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)

	for _, want := range []string{"database host", "rabbitmq host", "http port", "kitchen prefetch"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "app", Password: "p@ss", Database: "pizzeria", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss@db:5433/pizzeria?sslmode=disable", c.DSN())
}
