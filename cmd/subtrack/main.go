package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/subtrack/adapter/cli"
	"github.com/felixgeelhaar/subtrack/adapter/cli/subscriptions"
	"github.com/felixgeelhaar/subtrack/internal/app"
	"github.com/felixgeelhaar/subtrack/pkg/config"
	"github.com/felixgeelhaar/subtrack/pkg/observability"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Create context cancelled on shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(observability.LogConfigFor(cfg.LogLevel, cfg.LogFormat, cfg.AppEnv))
	slog.SetDefault(logger)
	cli.SetLogger(logger)
	cli.SetConfig(cfg)

	// Commands such as migrate and version run without the full container
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			logger.Error("failed to initialize container", "error", err)
			return 1
		}
		logger.Warn("failed to initialize container, running in limited mode", "error", err)
	} else {
		defer container.Close()
		cli.SetApp(container)
	}

	cli.AddCommand(subscriptions.Cmd)

	if err := cli.Execute(ctx); err != nil {
		return 1
	}
	return 0
}
