package commands

import (
	"context"
	"fmt"

	sharedApplication "github.com/felixgeelhaar/subtrack/internal/shared/application"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
	"github.com/google/uuid"
)

// UpdateSubscriptionCommand contains a partial update for one subscription.
type UpdateSubscriptionCommand struct {
	Actor          Actor
	SubscriptionID uuid.UUID
	Patch          subscription.Patch
}

// UpdateSubscriptionHandler handles the UpdateSubscriptionCommand.
type UpdateSubscriptionHandler struct {
	repo subscription.Repository
	uow  sharedApplication.UnitOfWork
}

// NewUpdateSubscriptionHandler creates a new UpdateSubscriptionHandler.
func NewUpdateSubscriptionHandler(repo subscription.Repository, uow sharedApplication.UnitOfWork) *UpdateSubscriptionHandler {
	return &UpdateSubscriptionHandler{repo: repo, uow: uow}
}

// Handle applies the patch and returns the post-update record.
func (h *UpdateSubscriptionHandler) Handle(ctx context.Context, cmd UpdateSubscriptionCommand) (*subscription.Subscription, error) {
	var updated *subscription.Subscription

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		s, err := loadOwned(txCtx, h.repo, cmd.SubscriptionID, cmd.Actor.UserID)
		if err != nil {
			return err
		}

		if cmd.Patch.IsEmpty() {
			updated = s
			return nil
		}

		if err := s.Apply(cmd.Patch); err != nil {
			return err
		}
		if err := h.repo.Update(txCtx, s); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}

		updated = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}
