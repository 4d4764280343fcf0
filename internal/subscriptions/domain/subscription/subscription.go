package subscription

import (
	"math"
	"strings"
	"time"

	"github.com/felixgeelhaar/subtrack/internal/shared/domain"
	"github.com/google/uuid"
)

const defaultCurrency = "USD"

// Fields are the creator-supplied attributes of a new subscription.
// Empty values take their defaults.
type Fields struct {
	Name            string
	Plan            string
	Price           float64
	Currency        string
	BillingCycle    string
	Category        string
	PaymentMethod   string
	Status          string
	StartDate       *time.Time
	NextBillingDate *time.Time
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name            *string
	Plan            *string
	Price           *float64
	Currency        *string
	BillingCycle    *string
	Category        *string
	PaymentMethod   *string
	Status          *string
	StartDate       *time.Time
	NextBillingDate *time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Subscription is a recurring charge tracked for one owner.
type Subscription struct {
	domain.BaseAggregateRoot
	userID          string
	name            string
	plan            string
	price           float64
	currency        string
	billingCycle    BillingCycle
	category        string
	paymentMethod   string
	status          Status
	startDate       time.Time
	nextBillingDate time.Time
}

// NewSubscription creates a subscription owned by userID. The owner is fixed
// for the lifetime of the record. now supplies the default start date.
func NewSubscription(userID string, f Fields, now time.Time) (*Subscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, invalid("user", "is required")
	}

	s := &Subscription{
		BaseAggregateRoot: domain.NewBaseAggregateRoot(),
		userID:            userID,
		name:              strings.TrimSpace(f.Name),
		plan:              strings.TrimSpace(f.Plan),
		category:          strings.TrimSpace(f.Category),
		paymentMethod:     strings.TrimSpace(f.PaymentMethod),
	}

	if err := validatePrice(f.Price); err != nil {
		return nil, err
	}
	s.price = f.Price

	currency, err := normalizeCurrency(f.Currency)
	if err != nil {
		return nil, err
	}
	s.currency = currency

	if s.billingCycle, err = ParseBillingCycle(f.BillingCycle); err != nil {
		return nil, err
	}
	if s.status, err = ParseStatus(f.Status); err != nil {
		return nil, err
	}

	s.startDate = now.UTC()
	if f.StartDate != nil {
		s.startDate = f.StartDate.UTC()
	}
	s.nextBillingDate = s.billingCycle.Next(s.startDate)
	if f.NextBillingDate != nil {
		s.nextBillingDate = f.NextBillingDate.UTC()
	}
	if err := validateDates(s.startDate, s.nextBillingDate); err != nil {
		return nil, err
	}

	s.AddDomainEvent(NewSubscriptionCreated(s))
	s.AddDomainEvent(NewReminderRequested(s.ID()))

	return s, nil
}

// Snapshot is the flat persisted form of a subscription.
type Snapshot struct {
	ID              uuid.UUID
	UserID          string
	Name            string
	Plan            string
	Price           float64
	Currency        string
	BillingCycle    BillingCycle
	Category        string
	PaymentMethod   string
	Status          Status
	StartDate       time.Time
	NextBillingDate time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Rehydrate rebuilds a subscription from storage without raising events.
func Rehydrate(snap Snapshot) *Subscription {
	return &Subscription{
		BaseAggregateRoot: domain.RehydrateBaseAggregateRoot(snap.ID, snap.CreatedAt, snap.UpdatedAt),
		userID:            snap.UserID,
		name:              snap.Name,
		plan:              snap.Plan,
		price:             snap.Price,
		currency:          snap.Currency,
		billingCycle:      snap.BillingCycle,
		category:          snap.Category,
		paymentMethod:     snap.PaymentMethod,
		status:            snap.Status,
		startDate:         snap.StartDate,
		nextBillingDate:   snap.NextBillingDate,
	}
}

// Snapshot returns the persisted form of s.
func (s *Subscription) Snapshot() Snapshot {
	return Snapshot{
		ID:              s.ID(),
		UserID:          s.userID,
		Name:            s.name,
		Plan:            s.plan,
		Price:           s.price,
		Currency:        s.currency,
		BillingCycle:    s.billingCycle,
		Category:        s.category,
		PaymentMethod:   s.paymentMethod,
		Status:          s.status,
		StartDate:       s.startDate,
		NextBillingDate: s.nextBillingDate,
		CreatedAt:       s.CreatedAt(),
		UpdatedAt:       s.UpdatedAt(),
	}
}

// Getters

func (s *Subscription) UserID() string             { return s.userID }
func (s *Subscription) Name() string               { return s.name }
func (s *Subscription) Plan() string               { return s.plan }
func (s *Subscription) Price() float64             { return s.price }
func (s *Subscription) Currency() string           { return s.currency }
func (s *Subscription) BillingCycle() BillingCycle { return s.billingCycle }
func (s *Subscription) Category() string           { return s.category }
func (s *Subscription) PaymentMethod() string      { return s.paymentMethod }
func (s *Subscription) Status() Status             { return s.status }
func (s *Subscription) StartDate() time.Time       { return s.startDate }
func (s *Subscription) NextBillingDate() time.Time { return s.nextBillingDate }
func (s *Subscription) IsActive() bool             { return s.status == StatusActive }
func (s *Subscription) IsCancelled() bool          { return s.status == StatusCancelled }

// Apply validates p against the current state and applies it atomically:
// on error s is unchanged.
func (s *Subscription) Apply(p Patch) error {
	next := *s

	if p.Name != nil {
		next.name = strings.TrimSpace(*p.Name)
	}
	if p.Plan != nil {
		next.plan = strings.TrimSpace(*p.Plan)
	}
	if p.Price != nil {
		if err := validatePrice(*p.Price); err != nil {
			return err
		}
		next.price = *p.Price
	}
	if p.Currency != nil {
		currency, err := normalizeCurrency(*p.Currency)
		if err != nil {
			return err
		}
		next.currency = currency
	}
	if p.BillingCycle != nil {
		cycle, err := ParseBillingCycle(*p.BillingCycle)
		if err != nil {
			return err
		}
		next.billingCycle = cycle
	}
	if p.Category != nil {
		next.category = strings.TrimSpace(*p.Category)
	}
	if p.PaymentMethod != nil {
		next.paymentMethod = strings.TrimSpace(*p.PaymentMethod)
	}
	if p.Status != nil {
		status, err := ParseStatus(*p.Status)
		if err != nil {
			return err
		}
		next.status = status
	}
	if p.StartDate != nil {
		next.startDate = p.StartDate.UTC()
	}
	if p.NextBillingDate != nil {
		next.nextBillingDate = p.NextBillingDate.UTC()
	}
	if err := validateDates(next.startDate, next.nextBillingDate); err != nil {
		return err
	}

	*s = next
	s.Touch()
	return nil
}

// Cancel sets the status to cancelled. Repeating it is a no-op.
func (s *Subscription) Cancel() {
	if s.status == StatusCancelled {
		return
	}
	s.status = StatusCancelled
	s.Touch()
	s.AddDomainEvent(NewSubscriptionCancelled(s.ID(), s.userID))
}

// MarkDeleted records the deletion event. The caller removes the record.
func (s *Subscription) MarkDeleted() {
	s.AddDomainEvent(NewSubscriptionDeleted(s.ID(), s.userID))
}

// RenewsWithin reports whether s is active and renews in [from, to].
func (s *Subscription) RenewsWithin(from, to time.Time) bool {
	if !s.IsActive() {
		return false
	}
	return !s.nextBillingDate.Before(from) && !s.nextBillingDate.After(to)
}

func validatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return invalid("price", "must be a non-negative number")
	}
	return nil
}

func normalizeCurrency(currency string) (string, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return defaultCurrency, nil
	}
	if len(currency) != 3 {
		return "", invalid("currency", "must be a 3-letter code")
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", invalid("currency", "must be a 3-letter code")
		}
	}
	return currency, nil
}

func validateDates(start, next time.Time) error {
	if next.Before(start) {
		return invalid("nextBillingDate", "must not be before startDate")
	}
	return nil
}
