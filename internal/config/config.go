package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "PIZZERIA"

// Config holds every runtime parameter. Values come from PIZZERIA_* variables,
// e.g. PIZZERIA_DATABASE_HOST or PIZZERIA_RABBITMQ_PASSWORD.
type Config struct {
	Database DatabaseConfig `envconfig:"DATABASE"`
	RabbitMQ RabbitMQConfig `envconfig:"RABBITMQ"`
	HTTP     HTTPConfig     `envconfig:"HTTP"`
	Kitchen  KitchenConfig  `envconfig:"KITCHEN"`
	Tracing  TracingConfig  `envconfig:"TRACING"`
}

type DatabaseConfig struct {
	Host           string `envconfig:"HOST" default:"localhost"`
	Port           int    `envconfig:"PORT" default:"5432"`
	User           string `envconfig:"USER" default:"pizzeria"`
	Password       string `envconfig:"PASSWORD"`
	Database       string `envconfig:"NAME" default:"pizzeria"`
	SSLMode        string `envconfig:"SSLMODE" default:"disable"`
	MaxConns       int32  `envconfig:"MAX_CONNS" default:"10"`
	ConnectRetries int    `envconfig:"CONNECT_RETRIES" default:"10"`
}

// DSN renders the connection string in URL form, accepted by both pgx and
// golang-migrate.
func (c DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

type RabbitMQConfig struct {
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     int    `envconfig:"PORT" default:"5672"`
	User     string `envconfig:"USER" default:"guest"`
	Password string `envconfig:"PASSWORD" default:"guest"`
	VHost    string `envconfig:"VHOST" default:"/"`
	UseTLS   bool   `envconfig:"TLS" default:"false"`
}

type HTTPConfig struct {
	Port           int      `envconfig:"PORT" default:"3000"`
	MaxConcurrency int      `envconfig:"MAX_CONCURRENCY" default:"50"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173"`
}

type KitchenConfig struct {
	WorkerName        string        `envconfig:"WORKER_NAME"`
	Prefetch          int           `envconfig:"PREFETCH" default:"1"`
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"30s"`
	CookTime          time.Duration `envconfig:"COOK_TIME" default:"10s"`
}

// TracingConfig leaves tracing off while Endpoint is empty.
type TracingConfig struct {
	Endpoint   string        `envconfig:"ENDPOINT"`
	URLPath    string        `envconfig:"URL_PATH" default:"/v1/traces"`
	AuthHeader string        `envconfig:"AUTH_HEADER"`
	Insecure   bool          `envconfig:"INSECURE" default:"true"`
	Timeout    time.Duration `envconfig:"EXPORT_TIMEOUT" default:"5s"`
}

func (t TracingConfig) Enabled() bool { return strings.TrimSpace(t.Endpoint) != "" }

// Load reads the environment. Callers apply their overrides and then call
// Validate.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports every missing or out-of-range field at once.
func (c *Config) Validate() error {
	var problems []string
	if c.Database.Host == "" {
		problems = append(problems, "database host is required")
	}
	if c.Database.Database == "" {
		problems = append(problems, "database name is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database port is out of range")
	}
	if c.RabbitMQ.Host == "" {
		problems = append(problems, "rabbitmq host is required")
	}
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq port is out of range")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		problems = append(problems, "http port is out of range")
	}
	if c.HTTP.MaxConcurrency <= 0 {
		problems = append(problems, "http max concurrency must be positive")
	}
	if c.Kitchen.Prefetch <= 0 {
		problems = append(problems, "kitchen prefetch must be positive")
	}
	if c.Kitchen.HeartbeatInterval <= 0 {
		problems = append(problems, "kitchen heartbeat interval must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
