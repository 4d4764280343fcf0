package commands

import (
	"context"
	"fmt"

	sharedApplication "github.com/felixgeelhaar/subtrack/internal/shared/application"
	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
	"github.com/google/uuid"
)

// CancelSubscriptionCommand cancels one subscription.
type CancelSubscriptionCommand struct {
	Actor          Actor
	SubscriptionID uuid.UUID
}

// CancelSubscriptionHandler handles the CancelSubscriptionCommand.
type CancelSubscriptionHandler struct {
	repo       subscription.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
}

// NewCancelSubscriptionHandler creates a new CancelSubscriptionHandler.
func NewCancelSubscriptionHandler(repo subscription.Repository, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork) *CancelSubscriptionHandler {
	return &CancelSubscriptionHandler{repo: repo, outboxRepo: outboxRepo, uow: uow}
}

// Handle sets the status to cancelled and persists it. Cancelling an
// already-cancelled subscription succeeds without emitting a second event.
func (h *CancelSubscriptionHandler) Handle(ctx context.Context, cmd CancelSubscriptionCommand) (*subscription.Subscription, error) {
	var cancelled *subscription.Subscription

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		s, err := loadOwned(txCtx, h.repo, cmd.SubscriptionID, cmd.Actor.UserID)
		if err != nil {
			return err
		}

		s.Cancel()
		if err := h.repo.Update(txCtx, s); err != nil {
			return fmt.Errorf("cancel subscription: %w", err)
		}
		if _, err := saveEvents(txCtx, h.outboxRepo, s, cmd.Actor); err != nil {
			return fmt.Errorf("save subscription events: %w", err)
		}

		cancelled = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}
