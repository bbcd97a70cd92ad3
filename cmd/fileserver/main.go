package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sharebridge/internal/config"
	"sharebridge/internal/fileserver"
	"sharebridge/internal/logger"
)

func main() {
	cfg := config.MustLoad()

	log := logger.SetupLogger(cfg.Env)
	slog.SetDefault(log)

	slog.Info("config loaded",
		"env", cfg.Env,
		"addr", cfg.FileServer.Address,
		"root_path", cfg.FileServer.RootPath,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	share, err := fileserver.NewShare(cfg.FileServer.RootPath)
	if err != nil {
		slog.Error("failed to open share", "error", err)
		os.Exit(1)
	}
	if !share.Exists() {
		// Not fatal: the underlying network share may come up later and
		// /health reports path_exists either way.
		slog.Warn("share root is currently unreachable", "root_path", share.Root())
	}

	handler := fileserver.NewHandler(share)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	handler.Routes(r)

	srv := &http.Server{
		Addr:        cfg.FileServer.Address,
		Handler:     r,
		IdleTimeout: cfg.FileServer.IdleTimeout,
	}

	go func() {
		slog.Info("starting file server", "addr", cfg.FileServer.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("file server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down file server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("file server shutdown error", "err", err)
	}
}
