package commands

import (
	"context"
	"fmt"

	sharedApplication "github.com/felixgeelhaar/subtrack/internal/shared/application"
	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
	"github.com/google/uuid"
)

// DeleteSubscriptionCommand permanently removes one subscription.
type DeleteSubscriptionCommand struct {
	Actor          Actor
	SubscriptionID uuid.UUID
}

// DeleteSubscriptionHandler handles the DeleteSubscriptionCommand.
type DeleteSubscriptionHandler struct {
	repo       subscription.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
}

// NewDeleteSubscriptionHandler creates a new DeleteSubscriptionHandler.
func NewDeleteSubscriptionHandler(repo subscription.Repository, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork) *DeleteSubscriptionHandler {
	return &DeleteSubscriptionHandler{repo: repo, outboxRepo: outboxRepo, uow: uow}
}

// Handle executes the DeleteSubscriptionCommand.
func (h *DeleteSubscriptionHandler) Handle(ctx context.Context, cmd DeleteSubscriptionCommand) error {
	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		s, err := loadOwned(txCtx, h.repo, cmd.SubscriptionID, cmd.Actor.UserID)
		if err != nil {
			return err
		}

		s.MarkDeleted()
		if err := h.repo.Delete(txCtx, s.ID()); err != nil {
			return fmt.Errorf("delete subscription: %w", err)
		}
		if _, err := saveEvents(txCtx, h.outboxRepo, s, cmd.Actor); err != nil {
			return fmt.Errorf("save subscription events: %w", err)
		}
		return nil
	})
}
