package main

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/subtrack/internal/app"
	"github.com/felixgeelhaar/subtrack/pkg/observability"
	"github.com/robfig/cron/v3"
)

// scheduleJobs registers outbox cleanup and stats reporting on scheduler.
func scheduleJobs(ctx context.Context, scheduler *cron.Cron, c *app.Container) error {
	cfg := c.Config

	if _, err := scheduler.AddFunc(cfg.OutboxCleanupSchedule, func() { cleanupOutbox(ctx, c) }); err != nil {
		return fmt.Errorf("invalid OUTBOX_CLEANUP_SCHEDULE %q: %w", cfg.OutboxCleanupSchedule, err)
	}
	if _, err := scheduler.AddFunc(cfg.OutboxStatsSchedule, func() { reportOutbox(c) }); err != nil {
		return fmt.Errorf("invalid OUTBOX_STATS_SCHEDULE %q: %w", cfg.OutboxStatsSchedule, err)
	}
	return nil
}

func cleanupOutbox(ctx context.Context, c *app.Container) {
	deleted, err := c.OutboxProcessor.Cleanup(ctx, c.Config.OutboxRetentionDays)
	if err != nil {
		c.Logger.Error("outbox cleanup failed", "error", err)
		return
	}
	c.Metrics.Counter(observability.MetricOutboxCleaned, deleted)
}

func reportOutbox(c *app.Container) {
	stats := c.RecordOutboxStats()
	c.Logger.Info("outbox stats",
		"running", stats.IsRunning,
		"published", stats.PublishedCount,
		"failed", stats.FailedCount,
		"dead", stats.DeadCount,
		"deferred", stats.DeferredCount,
		"lag_seconds", stats.LagSeconds,
	)
}
