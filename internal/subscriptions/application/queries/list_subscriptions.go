package queries

import (
	"context"

	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
)

// ListUserSubscriptionsQuery lists the subscriptions of TargetUserID.
// Only the target user may list them.
type ListUserSubscriptionsQuery struct {
	UserID       string
	TargetUserID string
}

// ListUserSubscriptionsHandler handles the ListUserSubscriptionsQuery.
type ListUserSubscriptionsHandler struct {
	repo subscription.Repository
}

// NewListUserSubscriptionsHandler creates a new ListUserSubscriptionsHandler.
func NewListUserSubscriptionsHandler(repo subscription.Repository) *ListUserSubscriptionsHandler {
	return &ListUserSubscriptionsHandler{repo: repo}
}

// Handle executes the ListUserSubscriptionsQuery.
func (h *ListUserSubscriptionsHandler) Handle(ctx context.Context, query ListUserSubscriptionsQuery) ([]SubscriptionDTO, error) {
	if err := subscription.Authorize(query.UserID, query.TargetUserID); err != nil {
		return nil, err
	}

	subs, err := h.repo.Find(ctx, subscription.Filter{UserID: query.TargetUserID})
	if err != nil {
		return nil, err
	}
	return ToDTOs(subs), nil
}

// ListAllSubscriptionsHandler returns every stored subscription.
// No ownership check is applied.
type ListAllSubscriptionsHandler struct {
	repo subscription.Repository
}

// NewListAllSubscriptionsHandler creates a new ListAllSubscriptionsHandler.
func NewListAllSubscriptionsHandler(repo subscription.Repository) *ListAllSubscriptionsHandler {
	return &ListAllSubscriptionsHandler{repo: repo}
}

// Handle executes the query.
func (h *ListAllSubscriptionsHandler) Handle(ctx context.Context) ([]SubscriptionDTO, error) {
	subs, err := h.repo.Find(ctx, subscription.Filter{})
	if err != nil {
		return nil, err
	}
	return ToDTOs(subs), nil
}
