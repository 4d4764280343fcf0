package persistence

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	sharedPersistence "github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/persistence"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// price is NUMERIC in PostgreSQL; read it back as float8.
const postgresSubscriptionColumns = "id, user_id, name, plan, price::float8, currency, billing_cycle, category, payment_method, status, start_date, next_billing_date, created_at, updated_at"

// PostgresSubscriptionRepository implements subscription.Repository with PostgreSQL.
type PostgresSubscriptionRepository struct {
	pool    *pgxpool.Pool
	builder sq.StatementBuilderType
}

// NewPostgresSubscriptionRepository creates a new repository.
func NewPostgresSubscriptionRepository(pool *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{
		pool:    pool,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Create inserts a new subscription.
func (r *PostgresSubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) error {
	snap := s.Snapshot()
	query := `
		INSERT INTO subscriptions (
			id, user_id, name, plan, price, currency, billing_cycle, category,
			payment_method, status, start_date, next_billing_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		snap.ID,
		snap.UserID,
		snap.Name,
		snap.Plan,
		snap.Price,
		snap.Currency,
		string(snap.BillingCycle),
		snap.Category,
		snap.PaymentMethod,
		string(snap.Status),
		snap.StartDate,
		snap.NextBillingDate,
		snap.CreatedAt,
		snap.UpdatedAt,
	)
	return err
}

// FindByID returns subscription.ErrSubscriptionNotFound when no row matches.
func (r *PostgresSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	row := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+postgresSubscriptionColumns+` FROM subscriptions WHERE id = $1`, id)

	s, err := scanPostgresSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return s, err
}

// Find returns the subscriptions matching filter.
func (r *PostgresSubscriptionRepository) Find(ctx context.Context, filter subscription.Filter) ([]*subscription.Subscription, error) {
	query, args, err := selectSubscriptions(r.builder, postgresSubscriptionColumns, filter, func(t time.Time) any {
		return t.UTC()
	}).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]*subscription.Subscription, 0)
	for rows.Next() {
		s, err := scanPostgresSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Update overwrites the mutable columns of an existing subscription.
func (r *PostgresSubscriptionRepository) Update(ctx context.Context, s *subscription.Subscription) error {
	snap := s.Snapshot()
	query := `
		UPDATE subscriptions SET
			name = $2, plan = $3, price = $4, currency = $5, billing_cycle = $6,
			category = $7, payment_method = $8, status = $9, start_date = $10,
			next_billing_date = $11, updated_at = $12
		WHERE id = $1
	`
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		snap.ID,
		snap.Name,
		snap.Plan,
		snap.Price,
		snap.Currency,
		string(snap.BillingCycle),
		snap.Category,
		snap.PaymentMethod,
		string(snap.Status),
		snap.StartDate,
		snap.NextBillingDate,
		snap.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireTagAffected(tag)
}

// Delete permanently removes a subscription.
func (r *PostgresSubscriptionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireTagAffected(tag)
}

func requireTagAffected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

func scanPostgresSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		snap         subscription.Snapshot
		billingCycle string
		status       string
	)

	err := row.Scan(
		&snap.ID,
		&snap.UserID,
		&snap.Name,
		&snap.Plan,
		&snap.Price,
		&snap.Currency,
		&billingCycle,
		&snap.Category,
		&snap.PaymentMethod,
		&status,
		&snap.StartDate,
		&snap.NextBillingDate,
		&snap.CreatedAt,
		&snap.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	snap.BillingCycle = subscription.BillingCycle(billingCycle)
	snap.Status = subscription.Status(status)
	snap.StartDate = snap.StartDate.UTC()
	snap.NextBillingDate = snap.NextBillingDate.UTC()
	snap.CreatedAt = snap.CreatedAt.UTC()
	snap.UpdatedAt = snap.UpdatedAt.UTC()

	return subscription.Rehydrate(snap), nil
}

var _ subscription.Repository = (*PostgresSubscriptionRepository)(nil)
