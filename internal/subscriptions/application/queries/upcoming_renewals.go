package queries

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
)

// DefaultRenewalDays is the window used when no usable day count is given.
const DefaultRenewalDays = 7

// ParseRenewalDays reads the leading integer of the raw days parameter, so
// "10abc" is 10 and "3.5" is 3. Missing, non-numeric and zero values fall
// back to DefaultRenewalDays. Negative values are kept and produce an empty
// window.
func ParseRenewalDays(raw string) int {
	days, err := strconv.Atoi(leadingInteger(raw))
	if err != nil || days == 0 {
		return DefaultRenewalDays
	}
	return days
}

// leadingInteger returns the optional sign and digits that open s after
// leading whitespace.
func leadingInteger(s string) string {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

// UpcomingRenewalsQuery contains the parameters for the renewals window.
type UpcomingRenewalsQuery struct {
	UserID string
	Days   int
}

// UpcomingRenewalsHandler handles the UpcomingRenewalsQuery.
type UpcomingRenewalsHandler struct {
	repo subscription.Repository
	now  func() time.Time
}

// NewUpcomingRenewalsHandler creates a new UpcomingRenewalsHandler.
// now defaults to time.Now.
func NewUpcomingRenewalsHandler(repo subscription.Repository, now func() time.Time) *UpcomingRenewalsHandler {
	if now == nil {
		now = time.Now
	}
	return &UpcomingRenewalsHandler{repo: repo, now: now}
}

// Handle returns the caller's active subscriptions renewing within
// [now, now+days], soonest first.
func (h *UpcomingRenewalsHandler) Handle(ctx context.Context, query UpcomingRenewalsQuery) ([]SubscriptionDTO, error) {
	from := h.now().UTC()
	to := from.AddDate(0, 0, query.Days)
	if to.Before(from) {
		return []SubscriptionDTO{}, nil
	}

	subs, err := h.repo.Find(ctx, subscription.Filter{
		UserID:          query.UserID,
		Status:          subscription.StatusActive,
		NextBillingFrom: &from,
		NextBillingTo:   &to,
		SortBy:          subscription.SortByNextBillingDate,
	})
	if err != nil {
		return nil, err
	}
	return ToDTOs(subs), nil
}
