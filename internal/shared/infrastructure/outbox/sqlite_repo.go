package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	sharedPersistence "github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteRepository stores outbox messages in SQLite. Timestamps are
// RFC3339 UTC text so they compare lexically.
type SQLiteRepository struct {
	dbConn *sql.DB
	sql    statements
	clock  func() time.Time
}

func NewSQLiteRepository(dbConn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		dbConn: dbConn,
		sql: statements{
			builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
			stamp:   func(t time.Time) any { return formatTime(t) },
		},
		clock: time.Now,
	}
}

func (r *SQLiteRepository) Save(ctx context.Context, msg *Message) error {
	return r.insert(ctx, sharedPersistence.SQLiteExecutor(ctx, r.dbConn), msg)
}

// SaveBatch inserts msgs in one transaction, reusing the caller's when
// present.
func (r *SQLiteRepository) SaveBatch(ctx context.Context, msgs []*Message) (err error) {
	if len(msgs) == 0 {
		return nil
	}
	if info, ok := sharedPersistence.SQLiteTxInfoFromContext(ctx); ok {
		return r.insertAll(ctx, info.Tx, msgs)
	}

	tx, err := r.dbConn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outbox batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.insertAll(ctx, tx, msgs); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) insertAll(ctx context.Context, exec sharedPersistence.SQLExecutor, msgs []*Message) error {
	for _, msg := range msgs {
		if err := r.insert(ctx, exec, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) insert(ctx context.Context, exec sharedPersistence.SQLExecutor, msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.clock().UTC()
	}
	var metadata sql.NullString
	if len(msg.Metadata) > 0 {
		metadata = sql.NullString{String: string(msg.Metadata), Valid: true}
	}

	query, args, err := r.sql.insert(
		msg.EventID.String(),
		msg.AggregateType,
		msg.AggregateID.String(),
		msg.EventType,
		msg.RoutingKey,
		string(msg.Payload),
		metadata,
		formatTime(msg.CreatedAt),
	).ToSql()
	if err != nil {
		return fmt.Errorf("build outbox insert: %w", err)
	}

	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert outbox message %s: %w", msg.EventType, err)
	}
	msg.ID, err = result.LastInsertId()
	return err
}

func (r *SQLiteRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	query, args, err := r.sql.due(r.clock(), limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build outbox select: %w", err)
	}

	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.dbConn).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.exec(ctx, r.sql.markPublished(id, r.clock()))
	return err
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := r.exec(ctx, r.sql.markFailed(id, errMsg, nextRetryAt))
	return err
}

func (r *SQLiteRepository) Defer(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error {
	_, err := r.exec(ctx, r.sql.deferUntil(id, reason, nextRetryAt))
	return err
}

func (r *SQLiteRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.exec(ctx, r.sql.markDead(id, reason, r.clock()))
	return err
}

func (r *SQLiteRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	return r.exec(ctx, r.sql.publishedBefore(retentionCutoff(r.clock(), olderThanDays)))
}

func (r *SQLiteRepository) exec(ctx context.Context, stmt sq.Sqlizer) (int64, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build outbox statement: %w", err)
	}
	result, err := sharedPersistence.SQLiteExecutor(ctx, r.dbConn).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanSQLiteMessage(rows *sql.Rows) (*Message, error) {
	var (
		msg              Message
		eventID          sql.NullString
		aggregateID      string
		payload          string
		metadata         sql.NullString
		createdAt        string
		publishedAt      sql.NullString
		nextRetryAt      sql.NullString
		lastError        sql.NullString
		deadLetteredAt   sql.NullString
		deadLetterReason sql.NullString
	)

	err := rows.Scan(
		&msg.ID,
		&eventID,
		&msg.AggregateType,
		&aggregateID,
		&msg.EventType,
		&msg.RoutingKey,
		&payload,
		&metadata,
		&createdAt,
		&publishedAt,
		&nextRetryAt,
		&msg.RetryCount,
		&lastError,
		&deadLetteredAt,
		&deadLetterReason,
	)
	if err != nil {
		return nil, err
	}

	if eventID.Valid {
		msg.EventID, _ = uuid.Parse(eventID.String)
	}
	msg.AggregateID, _ = uuid.Parse(aggregateID)
	msg.Payload = json.RawMessage(payload)
	if metadata.Valid {
		msg.Metadata = json.RawMessage(metadata.String)
	}
	msg.CreatedAt = parseTime(createdAt)
	msg.PublishedAt = parseNullTime(publishedAt)
	msg.NextRetryAt = parseNullTime(nextRetryAt)
	msg.DeadLetteredAt = parseNullTime(deadLetteredAt)
	if lastError.Valid {
		msg.LastError = &lastError.String
	}
	if deadLetterReason.Valid {
		msg.DeadLetterReason = &deadLetterReason.String
	}

	return &msg, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
