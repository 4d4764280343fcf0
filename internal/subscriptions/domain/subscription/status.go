package subscription

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// ParseStatus normalizes s. An empty value yields StatusActive.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return StatusActive, nil
	case StatusActive:
		return StatusActive, nil
	case StatusCancelled:
		return StatusCancelled, nil
	case StatusExpired:
		return StatusExpired, nil
	default:
		return "", invalid("status", "must be one of active, cancelled, expired")
	}
}

func (s Status) String() string { return string(s) }

// BillingCycle is how often a subscription renews.
type BillingCycle string

const (
	CycleDaily     BillingCycle = "daily"
	CycleWeekly    BillingCycle = "weekly"
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleYearly    BillingCycle = "yearly"
)

// ParseBillingCycle normalizes s. An empty value yields CycleMonthly.
func ParseBillingCycle(s string) (BillingCycle, error) {
	c := BillingCycle(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case "":
		return CycleMonthly, nil
	case CycleDaily, CycleWeekly, CycleMonthly, CycleQuarterly, CycleYearly:
		return c, nil
	default:
		return "", invalid("billingCycle", "must be one of daily, weekly, monthly, quarterly, yearly")
	}
}

// Next returns the renewal that follows t.
func (c BillingCycle) Next(t time.Time) time.Time {
	switch c {
	case CycleDaily:
		return t.AddDate(0, 0, 1)
	case CycleWeekly:
		return t.AddDate(0, 0, 7)
	case CycleQuarterly:
		return t.AddDate(0, 3, 0)
	case CycleYearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

func (c BillingCycle) String() string { return string(c) }
