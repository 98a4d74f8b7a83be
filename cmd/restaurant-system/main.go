package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/common/tracing"
	"pizzeria-system/internal/config"
	"pizzeria-system/internal/connections/database"
	"pizzeria-system/internal/connections/rabbitmq"
	"pizzeria-system/internal/microservices/kitchen"
	"pizzeria-system/internal/microservices/notificator"
	"pizzeria-system/internal/microservices/order"
	"pizzeria-system/internal/migrations"
)

const (
	rabbitAttempts = 10
	rabbitDelay    = 2 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "restaurant-system",
		Usage: "pizzeria order, kitchen and notification services",
		Commands: []*cli.Command{
			{
				Name:  "order-service",
				Usage: "serve the order and stock HTTP API",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Usage: "HTTP port (overrides PIZZERIA_HTTP_PORT)"},
					&cli.IntFlag{Name: "max-concurrent", Usage: "max in-flight requests"},
					&cli.BoolFlag{Name: "migrate", Usage: "apply pending migrations before serving"},
				},
				Action: runOrderService,
			},
			{
				Name:  "kitchen-worker",
				Usage: "cook confirmed orders from the kitchen queue",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "worker-name", Usage: "unique worker name"},
					&cli.IntFlag{Name: "prefetch", Usage: "RabbitMQ prefetch"},
					&cli.DurationFlag{Name: "heartbeat-interval", Usage: "worker heartbeat interval"},
					&cli.DurationFlag{Name: "cook-time", Usage: "simulated cooking time"},
				},
				Action: runKitchenWorker,
			},
			{
				Name:   "notification-subscriber",
				Usage:  "log customer-facing status notifications",
				Action: runNotificationSubscriber,
			},
			{
				Name:  "migrate",
				Usage: "manage the database schema",
				Subcommands: []*cli.Command{
					{Name: "up", Usage: "apply pending migrations", Action: runMigrateUp},
					{
						Name:   "down",
						Usage:  "roll back migrations",
						Flags:  []cli.Flag{&cli.IntFlag{Name: "steps", Value: 1}},
						Action: runMigrateDown,
					},
				},
			},
		},
	}
}

// loadConfig reads the environment and lets command flags override it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if c.IsSet("port") {
		cfg.HTTP.Port = c.Int("port")
	}
	if c.IsSet("max-concurrent") {
		cfg.HTTP.MaxConcurrency = c.Int("max-concurrent")
	}
	if c.IsSet("worker-name") {
		cfg.Kitchen.WorkerName = c.String("worker-name")
	}
	if c.IsSet("prefetch") {
		cfg.Kitchen.Prefetch = c.Int("prefetch")
	}
	if c.IsSet("heartbeat-interval") {
		cfg.Kitchen.HeartbeatInterval = c.Duration("heartbeat-interval")
	}
	if c.IsSet("cook-time") {
		cfg.Kitchen.CookTime = c.Duration("cook-time")
	}
	return cfg, cfg.Validate()
}

// env holds the connections shared by every long-running command.
type env struct {
	cfg  *config.Config
	log  *logger.Logger
	pool *pgxpool.Pool
	rmq  *rabbitmq.Client
	stop func()
}

func setup(c *cli.Context, service string, needDB bool, checks ...func(*config.Config) error) (*env, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return nil, err
		}
	}
	ctx := c.Context
	e := &env{cfg: cfg, log: logger.New(service)}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, service)
	if err != nil {
		return nil, err
	}
	closers := []func(){func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			e.log.Error("tracing_shutdown_failed", err, nil)
		}
	}}
	e.stop = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		e.log.Sync()
	}

	if needDB {
		if e.pool, err = database.ConnectDB(ctx, cfg.Database); err != nil {
			e.stop()
			return nil, err
		}
		closers = append(closers, e.pool.Close)
		e.log.Info("db_connected", map[string]any{"host": cfg.Database.Host, "database": cfg.Database.Database})
	}

	if e.rmq, err = rabbitmq.DialWithRetry(ctx, rabbitConfig(cfg.RabbitMQ), rabbitAttempts, rabbitDelay); err != nil {
		e.stop()
		return nil, err
	}
	closers = append(closers, e.rmq.Close)
	if err := e.rmq.DeclareTopology(); err != nil {
		e.stop()
		return nil, err
	}
	e.log.Info("rabbitmq_connected", map[string]any{"host": cfg.RabbitMQ.Host, "vhost": cfg.RabbitMQ.VHost})
	return e, nil
}

func rabbitConfig(c config.RabbitMQConfig) rabbitmq.Config {
	return rabbitmq.Config{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		VHost:    c.VHost,
		UseTLS:   c.UseTLS,
	}
}

func runOrderService(c *cli.Context) error {
	e, err := setup(c, "order-service", true)
	if err != nil {
		return err
	}
	defer e.stop()

	if c.Bool("migrate") {
		v, err := migrations.Up(e.cfg.Database.DSN())
		if err != nil {
			return err
		}
		e.log.Info("migrations_applied", map[string]any{"version": v})
	}
	return order.Run(c.Context, e.cfg.HTTP, e.pool, e.rmq, e.log)
}

func runKitchenWorker(c *cli.Context) error {
	e, err := setup(c, "kitchen-worker", true, requireWorkerName)
	if err != nil {
		return err
	}
	defer e.stop()

	return kitchen.Run(c.Context, e.cfg.Kitchen, e.pool, e.rmq, e.log)
}

func requireWorkerName(cfg *config.Config) error {
	if cfg.Kitchen.WorkerName == "" {
		return cli.Exit("--worker-name or PIZZERIA_KITCHEN_WORKER_NAME is required", 2)
	}
	return nil
}

func runNotificationSubscriber(c *cli.Context) error {
	e, err := setup(c, "notification-subscriber", false)
	if err != nil {
		return err
	}
	defer e.stop()

	return notificator.Run(c.Context, e.rmq, e.log)
}

func runMigrateUp(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logger.New("migrate")
	defer log.Sync()

	v, err := migrations.Up(cfg.Database.DSN())
	if err != nil {
		return err
	}
	log.Info("migrations_applied", map[string]any{"version": v})
	return nil
}

func runMigrateDown(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logger.New("migrate")
	defer log.Sync()

	steps := c.Int("steps")
	if steps <= 0 {
		return cli.Exit("--steps must be positive", 2)
	}
	if err := migrations.Down(cfg.Database.DSN(), steps); err != nil {
		return err
	}
	log.Info("migrations_rolled_back", map[string]any{"steps": steps})
	return nil
}
