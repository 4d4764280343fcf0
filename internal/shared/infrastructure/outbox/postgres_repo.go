package outbox

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	sharedPersistence "github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores outbox messages in PostgreSQL. Calls join the
// transaction carried by ctx when there is one.
type PostgresRepository struct {
	pool  *pgxpool.Pool
	sql   statements
	clock func() time.Time
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{
		pool: pool,
		sql: statements{
			builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
			stamp:   func(t time.Time) any { return t.UTC() },
		},
		clock: time.Now,
	}
}

func (r *PostgresRepository) Save(ctx context.Context, msg *Message) error {
	return r.insert(ctx, sharedPersistence.Executor(ctx, r.pool), msg)
}

// SaveBatch inserts msgs in one transaction, reusing the caller's when
// present.
func (r *PostgresRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if info, ok := sharedPersistence.TxInfoFromContext(ctx); ok {
		return r.insertAll(ctx, info.Tx, msgs)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return r.insertAll(ctx, tx, msgs)
	})
}

func (r *PostgresRepository) insertAll(ctx context.Context, exec sharedPersistence.PgExecutor, msgs []*Message) error {
	for _, msg := range msgs {
		if err := r.insert(ctx, exec, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) insert(ctx context.Context, exec sharedPersistence.PgExecutor, msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.clock().UTC()
	}
	query, args, err := r.sql.insert(
		msg.EventID,
		msg.AggregateType,
		msg.AggregateID,
		msg.EventType,
		msg.RoutingKey,
		msg.Payload,
		msg.Metadata,
		msg.CreatedAt,
	).Suffix("RETURNING id").ToSql()
	if err != nil {
		return fmt.Errorf("build outbox insert: %w", err)
	}
	if err := exec.QueryRow(ctx, query, args...).Scan(&msg.ID); err != nil {
		return fmt.Errorf("insert outbox message %s: %w", msg.EventType, err)
	}
	return nil
}

func (r *PostgresRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	query, args, err := r.sql.due(r.clock(), limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build outbox select: %w", err)
	}

	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPostgresMessage)
}

func (r *PostgresRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.exec(ctx, r.sql.markPublished(id, r.clock()))
	return err
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := r.exec(ctx, r.sql.markFailed(id, errMsg, nextRetryAt))
	return err
}

func (r *PostgresRepository) Defer(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error {
	_, err := r.exec(ctx, r.sql.deferUntil(id, reason, nextRetryAt))
	return err
}

func (r *PostgresRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.exec(ctx, r.sql.markDead(id, reason, r.clock()))
	return err
}

func (r *PostgresRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	return r.exec(ctx, r.sql.publishedBefore(retentionCutoff(r.clock(), olderThanDays)))
}

func (r *PostgresRepository) exec(ctx context.Context, stmt sq.Sqlizer) (int64, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build outbox statement: %w", err)
	}
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanPostgresMessage(row pgx.CollectableRow) (*Message, error) {
	var msg Message
	err := row.Scan(
		&msg.ID,
		&msg.EventID,
		&msg.AggregateType,
		&msg.AggregateID,
		&msg.EventType,
		&msg.RoutingKey,
		&msg.Payload,
		&msg.Metadata,
		&msg.CreatedAt,
		&msg.PublishedAt,
		&msg.NextRetryAt,
		&msg.RetryCount,
		&msg.LastError,
		&msg.DeadLetteredAt,
		&msg.DeadLetterReason,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
