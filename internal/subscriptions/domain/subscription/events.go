package subscription

import (
	"time"

	"github.com/felixgeelhaar/subtrack/internal/shared/domain"
	"github.com/google/uuid"
)

const (
	AggregateType = "Subscription"

	RoutingKeyCreated           = "subscription.created"
	RoutingKeyCancelled         = "subscription.cancelled"
	RoutingKeyDeleted           = "subscription.deleted"
	RoutingKeyReminderRequested = "subscription.reminder.requested"

	// RoutingKeyReminderPrefix matches every event handled by the workflow engine.
	RoutingKeyReminderPrefix = "subscription.reminder."
)

// SubscriptionCreated is emitted when a subscription is first persisted.
type SubscriptionCreated struct {
	domain.BaseEvent
	SubscriptionID  string    `json:"subscriptionId"`
	UserID          string    `json:"user"`
	Name            string    `json:"name,omitempty"`
	Plan            string    `json:"plan,omitempty"`
	Price           float64   `json:"price"`
	Currency        string    `json:"currency"`
	BillingCycle    string    `json:"billingCycle"`
	NextBillingDate time.Time `json:"nextBillingDate"`
}

// NewSubscriptionCreated creates a SubscriptionCreated event.
func NewSubscriptionCreated(s *Subscription) *SubscriptionCreated {
	return &SubscriptionCreated{
		BaseEvent:       domain.NewBaseEvent(s.ID(), AggregateType, RoutingKeyCreated),
		SubscriptionID:  s.ID().String(),
		UserID:          s.userID,
		Name:            s.name,
		Plan:            s.plan,
		Price:           s.price,
		Currency:        s.currency,
		BillingCycle:    s.billingCycle.String(),
		NextBillingDate: s.nextBillingDate,
	}
}

// ReminderRequested asks the workflow engine to schedule renewal reminders.
type ReminderRequested struct {
	domain.BaseEvent
	SubscriptionID string `json:"subscriptionId"`
}

// NewReminderRequested creates a ReminderRequested event.
func NewReminderRequested(subscriptionID uuid.UUID) *ReminderRequested {
	return &ReminderRequested{
		BaseEvent:      domain.NewBaseEvent(subscriptionID, AggregateType, RoutingKeyReminderRequested),
		SubscriptionID: subscriptionID.String(),
	}
}

// SubscriptionCancelled is emitted when a subscription moves to cancelled.
type SubscriptionCancelled struct {
	domain.BaseEvent
	SubscriptionID string `json:"subscriptionId"`
	UserID         string `json:"user"`
}

// NewSubscriptionCancelled creates a SubscriptionCancelled event.
func NewSubscriptionCancelled(subscriptionID uuid.UUID, userID string) *SubscriptionCancelled {
	return &SubscriptionCancelled{
		BaseEvent:      domain.NewBaseEvent(subscriptionID, AggregateType, RoutingKeyCancelled),
		SubscriptionID: subscriptionID.String(),
		UserID:         userID,
	}
}

// SubscriptionDeleted is emitted when a subscription is permanently removed.
type SubscriptionDeleted struct {
	domain.BaseEvent
	SubscriptionID string `json:"subscriptionId"`
	UserID         string `json:"user"`
}

// NewSubscriptionDeleted creates a SubscriptionDeleted event.
func NewSubscriptionDeleted(subscriptionID uuid.UUID, userID string) *SubscriptionDeleted {
	return &SubscriptionDeleted{
		BaseEvent:      domain.NewBaseEvent(subscriptionID, AggregateType, RoutingKeyDeleted),
		SubscriptionID: subscriptionID.String(),
		UserID:         userID,
	}
}
