package queries

import (
	"context"

	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
	"github.com/google/uuid"
)

// GetSubscriptionQuery contains the parameters for getting a single subscription.
type GetSubscriptionQuery struct {
	SubscriptionID uuid.UUID
	UserID         string
}

// GetSubscriptionHandler handles the GetSubscriptionQuery.
type GetSubscriptionHandler struct {
	repo subscription.Repository
}

// NewGetSubscriptionHandler creates a new GetSubscriptionHandler.
func NewGetSubscriptionHandler(repo subscription.Repository) *GetSubscriptionHandler {
	return &GetSubscriptionHandler{repo: repo}
}

// Handle executes the GetSubscriptionQuery.
func (h *GetSubscriptionHandler) Handle(ctx context.Context, query GetSubscriptionQuery) (*SubscriptionDTO, error) {
	s, err := h.repo.FindByID(ctx, query.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, subscription.ErrSubscriptionNotFound
	}

	if err := subscription.Authorize(query.UserID, s.UserID()); err != nil {
		return nil, err
	}

	dto := ToDTO(s)
	return &dto, nil
}
