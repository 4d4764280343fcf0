// Command worker drains the transactional outbox and runs its maintenance
// jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/subtrack/internal/app"
	"github.com/felixgeelhaar/subtrack/pkg/config"
	"github.com/felixgeelhaar/subtrack/pkg/observability"
	"github.com/robfig/cron/v3"
)

const statusShutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger(observability.DefaultLogConfig()).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logCfg := observability.LogConfigFor(cfg.LogLevel, cfg.LogFormat, cfg.AppEnv)
	logCfg.ServiceName = "subtrack-worker"
	logger := observability.NewLogger(logCfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting subtrack worker")

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize container: %w", err)
	}
	defer container.Close()

	scheduler := cron.New()
	if err := scheduleJobs(ctx, scheduler, container); err != nil {
		return err
	}

	if err := container.OutboxProcessor.Start(ctx); err != nil {
		return fmt.Errorf("start outbox processor: %w", err)
	}
	scheduler.Start()

	if cfg.WorkerHealthAddr != "" {
		go serveStatus(ctx, cfg.WorkerHealthAddr, statusMux(container), logger)
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	<-scheduler.Stop().Done()
	container.OutboxProcessor.Stop()
	logger.Info("worker stopped")
	return nil
}

// serveStatus runs the status server until ctx is done.
func serveStatus(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status server shutdown error", "error", err)
		}
	}()

	logger.Info("status server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("status server error", "error", err)
	}
}
