// Scanner is the enqueuing trigger: it lists the files the gateway
// exposes and enqueues one work item per file. Duplicate enqueues are
// harmless because the pipeline's writes are idempotent.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sharebridge/internal/config"
	"sharebridge/internal/gateway"
	"sharebridge/internal/logger"
	"sharebridge/internal/queue"
)

func main() {
	interval := flag.Duration("interval", 0, "rescan interval; 0 runs a single scan and exits")
	flag.Parse()

	cfg := config.MustLoad()

	log := logger.SetupLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := gateway.NewClient(cfg.Worker.GatewayURL,
		gateway.WithTimeout(cfg.Worker.Timeout),
		gateway.WithMaxRetries(cfg.Worker.MaxRetries),
	)

	q, err := queue.NewRedisQueue(ctx, cfg.Broker.URL, cfg.Broker.QueueName)
	if err != nil {
		slog.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer q.Close()

	if err := scan(ctx, client, q); err != nil {
		slog.Error("scan failed", "err", err)
		if *interval == 0 {
			os.Exit(1)
		}
	}
	if *interval == 0 {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("scanner stopped")
			return
		case <-ticker.C:
			if err := scan(ctx, client, q); err != nil {
				slog.Error("scan failed", "err", err)
			}
		}
	}
}

func scan(ctx context.Context, client *gateway.Client, q queue.Queue) error {
	files, err := client.List(ctx)
	if err != nil {
		return err
	}

	for _, f := range files {
		item := queue.NewWorkItem(f.Name, "")
		if err := q.Enqueue(ctx, item); err != nil {
			return err
		}
		slog.Info("enqueued work item", "work_item", item.ID, "file", f.Name, "size", f.Size)
	}
	slog.Info("scan complete", "files", len(files))
	return nil
}
