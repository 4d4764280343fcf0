package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReminderCallbackPath is appended to the server URL to form the callback
// the engine invokes.
const ReminderCallbackPath = "/api/v1/workflows/subscription/reminder"

// ErrReminderPending is returned when another caller holds the trigger
// claim for a subscription and its run did not land before ctx ended.
var ErrReminderPending = errors.New("reminder trigger in progress elsewhere")

const (
	defaultClaimTTL     = 30 * time.Second
	defaultClaimPolling = 50 * time.Millisecond
)

// ReminderConfig configures ReminderScheduler.
type ReminderConfig struct {
	// ServerURL is this service's externally reachable base address.
	ServerURL string
	// ClaimTTL bounds how long a trigger claim is held. It should exceed
	// the trigger timeout.
	ClaimTTL time.Duration
	// ClaimPolling is how often a caller waiting on another claim rereads
	// the store.
	ClaimPolling time.Duration
}

// ReminderScheduler triggers at most one reminder workflow per subscription,
// across every process sharing its RunStore.
type ReminderScheduler struct {
	client Client
	store  RunStore
	config ReminderConfig
	logger *slog.Logger
}

// NewReminderScheduler creates a scheduler.
func NewReminderScheduler(client Client, store RunStore, config ReminderConfig, logger *slog.Logger) *ReminderScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ClaimTTL <= 0 {
		config.ClaimTTL = defaultClaimTTL
	}
	if config.ClaimPolling <= 0 {
		config.ClaimPolling = defaultClaimPolling
	}
	return &ReminderScheduler{
		client: client,
		store:  store,
		config: config,
		logger: logger.With("component", "reminder_scheduler"),
	}
}

// CallbackURL returns the address the engine calls back.
func (s *ReminderScheduler) CallbackURL() string {
	return strings.TrimRight(s.config.ServerURL, "/") + ReminderCallbackPath
}

// ScheduleReminder returns the run id already recorded for subscriptionID,
// or claims the subscription, triggers a new run and records it. A caller
// that finds a claim held elsewhere waits for that run.
func (s *ReminderScheduler) ScheduleReminder(ctx context.Context, subscriptionID uuid.UUID) (string, error) {
	key := subscriptionID.String()

	for {
		runID, ok, err := s.store.Get(ctx, key)
		if err != nil {
			return "", fmt.Errorf("lookup reminder run: %w", err)
		}
		switch {
		case ok && runID != pendingRun:
			s.logger.DebugContext(ctx, "reminder already scheduled",
				"subscription_id", key,
				"workflow_run_id", runID,
			)
			return runID, nil
		case !ok:
			claimed, err := s.store.Claim(ctx, key, s.config.ClaimTTL)
			if err != nil {
				return "", fmt.Errorf("claim reminder run: %w", err)
			}
			if claimed {
				return s.trigger(ctx, key)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", ErrReminderPending, ctx.Err())
		case <-time.After(s.config.ClaimPolling):
		}
	}
}

// trigger starts the run for a claimed key. A failed trigger releases the
// claim so a later attempt can retry.
func (s *ReminderScheduler) trigger(ctx context.Context, key string) (string, error) {
	runID, err := s.client.Trigger(ctx, TriggerRequest{
		URL:     s.CallbackURL(),
		Body:    map[string]string{"subscriptionId": key},
		Headers: map[string]string{"content-type": "application/json"},
		Retries: 0,
	})
	if err != nil {
		if relErr := s.store.Release(context.WithoutCancel(ctx), key); relErr != nil {
			s.logger.WarnContext(ctx, "failed to release reminder claim",
				"subscription_id", key,
				"error", relErr,
			)
		}
		return "", err
	}

	if err := s.store.Put(context.WithoutCancel(ctx), key, runID); err != nil {
		// The run exists; once the claim expires a retry may trigger again.
		s.logger.WarnContext(ctx, "failed to record reminder run",
			"subscription_id", key,
			"workflow_run_id", runID,
			"error", err,
		)
	}

	s.logger.InfoContext(ctx, "reminder scheduled",
		"subscription_id", key,
		"workflow_run_id", runID,
	)
	return runID, nil
}
