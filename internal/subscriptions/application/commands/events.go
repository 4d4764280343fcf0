package commands

import (
	"context"

	sharedApplication "github.com/felixgeelhaar/subtrack/internal/shared/application"
	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
	"github.com/google/uuid"
)

// Actor identifies who issued a command.
type Actor struct {
	UserID        string
	CorrelationID string
}

// saveEvents stamps the aggregate's pending events with actor metadata and
// appends them to the outbox inside the caller's unit of work.
func saveEvents(ctx context.Context, repo outbox.Repository, s *subscription.Subscription, actor Actor) ([]*outbox.Message, error) {
	events := s.DomainEvents()
	if len(events) == 0 {
		return nil, nil
	}
	sharedApplication.StampEvents(events, actor.UserID, actor.CorrelationID)

	msgs, err := outbox.FromEvents(events)
	if err != nil {
		return nil, err
	}
	if err := repo.SaveBatch(ctx, msgs); err != nil {
		return nil, err
	}
	s.ClearDomainEvents()
	return msgs, nil
}

// loadOwned fetches a subscription and applies the ownership policy.
func loadOwned(ctx context.Context, repo subscription.Repository, id uuid.UUID, caller string) (*subscription.Subscription, error) {
	s, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err := subscription.Authorize(caller, s.UserID()); err != nil {
		return nil, err
	}
	return s, nil
}
