package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// ReminderPublisher adapts ReminderScheduler to eventbus.Publisher so the
// outbox processor can redeliver reminder requests.
type ReminderPublisher struct {
	scheduler *ReminderScheduler
}

// NewReminderPublisher creates a publisher backed by scheduler.
func NewReminderPublisher(scheduler *ReminderScheduler) *ReminderPublisher {
	return &ReminderPublisher{scheduler: scheduler}
}

// Publish decodes the outbox envelope and schedules the reminder.
func (p *ReminderPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	env, err := outbox.DecodeEnvelope(payload)
	if err != nil {
		return fmt.Errorf("decode %s envelope: %w", routingKey, err)
	}

	var data struct {
		SubscriptionID string `json:"subscriptionId"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("decode %s data: %w", routingKey, err)
	}

	id, err := uuid.Parse(data.SubscriptionID)
	if err != nil {
		return fmt.Errorf("%s: invalid subscriptionId %q", routingKey, data.SubscriptionID)
	}

	_, err = p.scheduler.ScheduleReminder(ctx, id)
	if deferrable(err) {
		return fmt.Errorf("%w: %w", eventbus.ErrDeferred, err)
	}
	return err
}

// deferrable reports errors that clear without the message changing: the
// trigger is switched off, its breaker is open, or another process holds
// the claim.
func deferrable(err error) bool {
	return errors.Is(err, ErrTriggerDisabled) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrReminderPending)
}

// Close is a no-op.
func (p *ReminderPublisher) Close() error {
	return nil
}
