package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	sharedPersistence "github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/persistence"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
	"github.com/google/uuid"
)

// sqliteTimeLayout is fixed width so stored values sort chronologically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteSubscriptionRepository implements subscription.Repository with SQLite.
type SQLiteSubscriptionRepository struct {
	dbConn  *sql.DB
	builder sq.StatementBuilderType
}

// NewSQLiteSubscriptionRepository creates a new repository.
func NewSQLiteSubscriptionRepository(dbConn *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{
		dbConn:  dbConn,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// Create inserts a new subscription.
func (r *SQLiteSubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) error {
	snap := s.Snapshot()
	_, err := sharedPersistence.SQLiteExecutor(ctx, r.dbConn).ExecContext(ctx, `
		INSERT INTO subscriptions (
			id, user_id, name, plan, price, currency, billing_cycle, category,
			payment_method, status, start_date, next_billing_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.ID.String(),
		snap.UserID,
		snap.Name,
		snap.Plan,
		snap.Price,
		snap.Currency,
		string(snap.BillingCycle),
		snap.Category,
		snap.PaymentMethod,
		string(snap.Status),
		formatSQLiteTime(snap.StartDate),
		formatSQLiteTime(snap.NextBillingDate),
		formatSQLiteTime(snap.CreatedAt),
		formatSQLiteTime(snap.UpdatedAt),
	)
	return err
}

// FindByID returns subscription.ErrSubscriptionNotFound when no row matches.
func (r *SQLiteSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	row := sharedPersistence.SQLiteExecutor(ctx, r.dbConn).QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id.String())

	s, err := scanSQLiteSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return s, err
}

// Find returns the subscriptions matching filter.
func (r *SQLiteSubscriptionRepository) Find(ctx context.Context, filter subscription.Filter) ([]*subscription.Subscription, error) {
	query, args, err := selectSubscriptions(r.builder, subscriptionColumns, filter, func(t time.Time) any {
		return formatSQLiteTime(t)
	}).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.dbConn).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]*subscription.Subscription, 0)
	for rows.Next() {
		s, err := scanSQLiteSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Update overwrites the mutable columns of an existing subscription.
func (r *SQLiteSubscriptionRepository) Update(ctx context.Context, s *subscription.Subscription) error {
	snap := s.Snapshot()
	result, err := sharedPersistence.SQLiteExecutor(ctx, r.dbConn).ExecContext(ctx, `
		UPDATE subscriptions SET
			name = ?, plan = ?, price = ?, currency = ?, billing_cycle = ?,
			category = ?, payment_method = ?, status = ?, start_date = ?,
			next_billing_date = ?, updated_at = ?
		WHERE id = ?
	`,
		snap.Name,
		snap.Plan,
		snap.Price,
		snap.Currency,
		string(snap.BillingCycle),
		snap.Category,
		snap.PaymentMethod,
		string(snap.Status),
		formatSQLiteTime(snap.StartDate),
		formatSQLiteTime(snap.NextBillingDate),
		formatSQLiteTime(snap.UpdatedAt),
		snap.ID.String(),
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// Delete permanently removes a subscription.
func (r *SQLiteSubscriptionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := sharedPersistence.SQLiteExecutor(ctx, r.dbConn).ExecContext(ctx,
		`DELETE FROM subscriptions WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSubscription(row rowScanner) (*subscription.Subscription, error) {
	var (
		snap            subscription.Snapshot
		idStr           string
		billingCycle    string
		status          string
		startDate       string
		nextBillingDate string
		createdAt       string
		updatedAt       string
	)

	err := row.Scan(
		&idStr,
		&snap.UserID,
		&snap.Name,
		&snap.Plan,
		&snap.Price,
		&snap.Currency,
		&billingCycle,
		&snap.Category,
		&snap.PaymentMethod,
		&status,
		&startDate,
		&nextBillingDate,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	snap.ID, _ = uuid.Parse(idStr)
	snap.BillingCycle = subscription.BillingCycle(billingCycle)
	snap.Status = subscription.Status(status)
	snap.StartDate = parseSQLiteTime(startDate)
	snap.NextBillingDate = parseSQLiteTime(nextBillingDate)
	snap.CreatedAt = parseSQLiteTime(createdAt)
	snap.UpdatedAt = parseSQLiteTime(updatedAt)

	return subscription.Rehydrate(snap), nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.UTC()
}

var _ subscription.Repository = (*SQLiteSubscriptionRepository)(nil)
