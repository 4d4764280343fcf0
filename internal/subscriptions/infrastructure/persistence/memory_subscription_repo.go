package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
	"github.com/google/uuid"
)

// InMemorySubscriptionRepository keeps snapshots in process memory.
type InMemorySubscriptionRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]subscription.Snapshot
}

// NewInMemorySubscriptionRepository creates an empty repository.
func NewInMemorySubscriptionRepository() *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{items: make(map[uuid.UUID]subscription.Snapshot)}
}

func (r *InMemorySubscriptionRepository) Create(_ context.Context, s *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[s.ID()] = s.Snapshot()
	return nil
}

func (r *InMemorySubscriptionRepository) FindByID(_ context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.items[id]
	if !ok {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return subscription.Rehydrate(snap), nil
}

func (r *InMemorySubscriptionRepository) Find(_ context.Context, filter subscription.Filter) ([]*subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]subscription.Snapshot, 0)
	for _, snap := range r.items {
		if filter.UserID != "" && snap.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && snap.Status != filter.Status {
			continue
		}
		if filter.NextBillingFrom != nil && snap.NextBillingDate.Before(*filter.NextBillingFrom) {
			continue
		}
		if filter.NextBillingTo != nil && snap.NextBillingDate.After(*filter.NextBillingTo) {
			continue
		}
		matched = append(matched, snap)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		ka, kb := a.CreatedAt, b.CreatedAt
		if filter.SortBy == subscription.SortByNextBillingDate {
			ka, kb = a.NextBillingDate, b.NextBillingDate
		}
		if !ka.Equal(kb) {
			if filter.Descending {
				return ka.After(kb)
			}
			return ka.Before(kb)
		}
		return a.ID.String() < b.ID.String()
	})

	subs := make([]*subscription.Subscription, 0, len(matched))
	for _, snap := range matched {
		subs = append(subs, subscription.Rehydrate(snap))
	}
	return subs, nil
}

func (r *InMemorySubscriptionRepository) Update(_ context.Context, s *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[s.ID()]; !ok {
		return subscription.ErrSubscriptionNotFound
	}
	r.items[s.ID()] = s.Snapshot()
	return nil
}

func (r *InMemorySubscriptionRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return subscription.ErrSubscriptionNotFound
	}
	delete(r.items, id)
	return nil
}

var _ subscription.Repository = (*InMemorySubscriptionRepository)(nil)
