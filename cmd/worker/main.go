package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sharebridge/internal/config"
	"sharebridge/internal/etl"
	"sharebridge/internal/gateway"
	"sharebridge/internal/logger"
	"sharebridge/internal/queue"
	"sharebridge/internal/sink"
)

func main() {
	cfg := config.MustLoad()

	log := logger.SetupLogger(cfg.Env)
	slog.SetDefault(log)

	slog.Info("config loaded",
		"env", cfg.Env,
		"gateway_url", cfg.Worker.GatewayURL,
		"broker_url", cfg.Broker.URL,
		"workers", cfg.Worker.Count,
		"sheet_policy", cfg.Worker.SheetPolicy,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := sink.NewPostgres(ctx, cfg.DB.DSN)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	q, err := queue.NewRedisQueue(ctx, cfg.Broker.URL, cfg.Broker.QueueName)
	if err != nil {
		slog.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer q.Close()
	slog.Info("connected to broker", "queue", cfg.Broker.QueueName)

	client := gateway.NewClient(cfg.Worker.GatewayURL,
		gateway.WithTimeout(cfg.Worker.Timeout),
		gateway.WithMaxRetries(cfg.Worker.MaxRetries),
	)

	if health, err := client.CheckHealth(ctx); err != nil {
		slog.Warn("file server health check failed, continuing", "err", err)
	} else {
		slog.Info("file server healthy", "shared_path", health.SharedPath, "path_exists", health.PathExists)
	}

	pipeline := etl.New(q, client, db, etl.Config{
		Workers:         cfg.Worker.Count,
		MaxRequeue:      cfg.Worker.MaxRequeue,
		SheetPolicy:     etl.SheetPolicy(cfg.Worker.SheetPolicy),
		RequiredColumns: cfg.Worker.RequiredColumns,
	})

	slog.Info("starting pipeline workers", "count", cfg.Worker.Count)
	pipeline.Run(ctx)

	slog.Info("pipeline stopped")
}
