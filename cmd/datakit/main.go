package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"datakit/internal/backend"
	"datakit/internal/cli"
	"datakit/internal/config"
	"datakit/internal/logging"
	_ "datakit/internal/schema" // Register all entity kinds
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err == nil {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Debug("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Select storage backend; degrades toward memory instead of failing
	backends := backend.Open(ctx, cfg.Storage)
	defer backends.Close()

	if backends.Warning != "" {
		slog.Warn("storage degraded", "warning", backends.Warning)
	}

	app := &cli.App{Config: cfg, Backends: backends}
	root := cli.NewRootCommand(app)

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		backends.Close()
		os.Exit(1)
	}
}
