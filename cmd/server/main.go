package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/tablesync/internal/config"
	"github.com/JonMunkholm/tablesync/internal/core"
	"github.com/JonMunkholm/tablesync/internal/logging"
	"github.com/JonMunkholm/tablesync/internal/remote"
	"github.com/JonMunkholm/tablesync/internal/storage"
	"github.com/JonMunkholm/tablesync/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	client := remote.New(cfg.Remote.BaseURL, cfg.Remote.Timeout)
	service := core.NewService(store, client, cfg)
	if err := service.Start(ctx); err != nil {
		slog.Error("failed to load sessions", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests first, then let outstanding remote calls land
		// so their confirmations reach the store.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		if status := service.InFlight(); status.Active > 0 {
			slog.Info("waiting for remote calls to complete", "active", status.Active)
			if err := service.WaitForIdle(shutdownCtx); err != nil {
				slog.Warn("remote calls did not complete in time", "error", err)
			} else {
				slog.Info("all remote calls completed")
			}
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr(), "remote", cfg.Remote.BaseURL)
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
}
