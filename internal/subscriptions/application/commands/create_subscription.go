package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sharedApplication "github.com/felixgeelhaar/subtrack/internal/shared/application"
	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
	"github.com/google/uuid"
)

// ReminderScheduler arranges renewal reminders for a subscription and
// returns the workflow run id. Implementations must be idempotent per
// subscription.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, subscriptionID uuid.UUID) (string, error)
}

// CreateConfig configures CreateSubscriptionHandler.
type CreateConfig struct {
	// InlineDispatch attempts the reminder notify right after commit.
	// When false, or when it fails, the outbox processor delivers it.
	InlineDispatch bool
	Now            func() time.Time
}

// CreateSubscriptionCommand contains the data needed to create a subscription.
type CreateSubscriptionCommand struct {
	Actor  Actor
	Fields subscription.Fields
}

// CreateSubscriptionResult contains the created record and, when the inline
// notify succeeded, the workflow run id.
type CreateSubscriptionResult struct {
	Subscription  *subscription.Subscription
	WorkflowRunID string
}

// CreateSubscriptionHandler handles the CreateSubscriptionCommand.
type CreateSubscriptionHandler struct {
	repo       subscription.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	scheduler  ReminderScheduler
	config     CreateConfig
	logger     *slog.Logger
}

// NewCreateSubscriptionHandler creates a new CreateSubscriptionHandler.
// scheduler may be nil, in which case every notify goes through the outbox.
func NewCreateSubscriptionHandler(
	repo subscription.Repository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	scheduler ReminderScheduler,
	config CreateConfig,
	logger *slog.Logger,
) *CreateSubscriptionHandler {
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateSubscriptionHandler{
		repo:       repo,
		outboxRepo: outboxRepo,
		uow:        uow,
		scheduler:  scheduler,
		config:     config,
		logger:     logger.With("component", "create_subscription"),
	}
}

// Handle persists the subscription with its outbox events, then tries the
// reminder notify. A notify failure never fails the command.
func (h *CreateSubscriptionHandler) Handle(ctx context.Context, cmd CreateSubscriptionCommand) (*CreateSubscriptionResult, error) {
	var (
		s        *subscription.Subscription
		reminder *outbox.Message
	)

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		var err error
		s, err = subscription.NewSubscription(cmd.Actor.UserID, cmd.Fields, h.config.Now())
		if err != nil {
			return err
		}

		if err := h.repo.Create(txCtx, s); err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}

		msgs, err := saveEvents(txCtx, h.outboxRepo, s, cmd.Actor)
		if err != nil {
			return fmt.Errorf("save subscription events: %w", err)
		}
		for _, msg := range msgs {
			if msg.RoutingKey == subscription.RoutingKeyReminderRequested {
				reminder = msg
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &CreateSubscriptionResult{Subscription: s}
	if !h.config.InlineDispatch || h.scheduler == nil || reminder == nil {
		return result, nil
	}

	runID, err := h.scheduler.ScheduleReminder(ctx, s.ID())
	if err != nil {
		h.logger.WarnContext(ctx, "reminder notify deferred to outbox",
			"subscription_id", s.ID(),
			"outbox_id", reminder.ID,
			"error", err,
		)
		return result, nil
	}
	result.WorkflowRunID = runID

	if err := h.outboxRepo.MarkPublished(ctx, reminder.ID); err != nil {
		// The processor will redeliver; the scheduler dedupes by subscription.
		h.logger.WarnContext(ctx, "failed to mark reminder published",
			"subscription_id", s.ID(),
			"outbox_id", reminder.ID,
			"error", err,
		)
	}

	return result, nil
}
