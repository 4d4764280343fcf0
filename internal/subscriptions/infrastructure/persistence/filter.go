package persistence

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
)

const subscriptionColumns = "id, user_id, name, plan, price, currency, billing_cycle, category, payment_method, status, start_date, next_billing_date, created_at, updated_at"

// selectSubscriptions builds the Find query for filter. formatTime renders
// time bounds in the driver's storage format.
func selectSubscriptions(builder sq.StatementBuilderType, columns string, filter subscription.Filter, formatTime func(time.Time) any) sq.SelectBuilder {
	q := builder.Select(columns).From("subscriptions")

	if filter.UserID != "" {
		q = q.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.NextBillingFrom != nil {
		q = q.Where(sq.GtOrEq{"next_billing_date": formatTime(*filter.NextBillingFrom)})
	}
	if filter.NextBillingTo != nil {
		q = q.Where(sq.LtOrEq{"next_billing_date": formatTime(*filter.NextBillingTo)})
	}

	column := "created_at"
	if filter.SortBy == subscription.SortByNextBillingDate {
		column = "next_billing_date"
	}
	direction := "ASC"
	if filter.Descending {
		direction = "DESC"
	}
	return q.OrderBy(column+" "+direction, "id ASC")
}
