package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SortField selects the ordering of Find results.
type SortField string

const (
	SortByCreatedAt       SortField = "created_at"
	SortByNextBillingDate SortField = "next_billing_date"
)

// Filter narrows Find. Zero values mean "no constraint".
type Filter struct {
	UserID          string
	Status          Status
	NextBillingFrom *time.Time
	NextBillingTo   *time.Time
	SortBy          SortField
	Descending      bool
}

// Repository defines the interface for subscription persistence.
type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	Find(ctx context.Context, filter Filter) ([]*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	Delete(ctx context.Context, id uuid.UUID) error
}
