package queries

import (
	"time"

	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
)

// SubscriptionDTO is the read model returned to API and CLI callers.
type SubscriptionDTO struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user"`
	Name            string    `json:"name"`
	Plan            string    `json:"plan"`
	Price           float64   `json:"price"`
	Currency        string    `json:"currency"`
	BillingCycle    string    `json:"billingCycle"`
	Category        string    `json:"category,omitempty"`
	PaymentMethod   string    `json:"paymentMethod,omitempty"`
	Status          string    `json:"status"`
	StartDate       time.Time `json:"startDate"`
	NextBillingDate time.Time `json:"nextBillingDate"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ToDTO maps a subscription to its read model.
func ToDTO(s *subscription.Subscription) SubscriptionDTO {
	return SubscriptionDTO{
		ID:              s.ID().String(),
		UserID:          s.UserID(),
		Name:            s.Name(),
		Plan:            s.Plan(),
		Price:           s.Price(),
		Currency:        s.Currency(),
		BillingCycle:    s.BillingCycle().String(),
		Category:        s.Category(),
		PaymentMethod:   s.PaymentMethod(),
		Status:          s.Status().String(),
		StartDate:       s.StartDate(),
		NextBillingDate: s.NextBillingDate(),
		CreatedAt:       s.CreatedAt(),
		UpdatedAt:       s.UpdatedAt(),
	}
}

// ToDTOs maps a slice, never returning nil.
func ToDTOs(subs []*subscription.Subscription) []SubscriptionDTO {
	out := make([]SubscriptionDTO, 0, len(subs))
	for _, s := range subs {
		out = append(out, ToDTO(s))
	}
	return out
}
