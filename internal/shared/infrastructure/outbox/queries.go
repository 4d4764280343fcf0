package outbox

import (
	"time"

	sq "github.com/Masterminds/squirrel"
)

// outboxColumns is the scan order shared by both drivers.
var outboxColumns = []string{
	"id", "event_id", "aggregate_type", "aggregate_id", "event_type", "routing_key",
	"payload", "metadata", "created_at", "published_at", "next_retry_at", "retry_count",
	"last_error", "dead_lettered_at", "dead_letter_reason",
}

var insertColumns = []string{
	"event_id", "aggregate_type", "aggregate_id", "event_type", "routing_key",
	"payload", "metadata", "created_at",
}

// statements builds the outbox queries for one SQL dialect. stamp converts
// a timestamp into the driver's stored representation.
type statements struct {
	builder sq.StatementBuilderType
	stamp   func(time.Time) any
}

func (s statements) insert(values ...any) sq.InsertBuilder {
	return s.builder.Insert("outbox").Columns(insertColumns...).Values(values...)
}

// due selects messages that are neither published nor dead and whose retry
// time, if any, has passed.
func (s statements) due(now time.Time, limit int) sq.SelectBuilder {
	return s.builder.Select(outboxColumns...).
		From("outbox").
		Where(sq.Eq{"published_at": nil, "dead_lettered_at": nil}).
		Where(sq.Or{
			sq.Eq{"next_retry_at": nil},
			sq.LtOrEq{"next_retry_at": s.stamp(now)},
		}).
		OrderBy("created_at", "id").
		Limit(uint64(max(limit, 1)))
}

func (s statements) markPublished(id int64, now time.Time) sq.UpdateBuilder {
	return s.builder.Update("outbox").
		Set("published_at", s.stamp(now)).
		Set("dead_lettered_at", nil).
		Where(sq.Eq{"id": id})
}

func (s statements) markFailed(id int64, errMsg string, next time.Time) sq.UpdateBuilder {
	return s.builder.Update("outbox").
		Set("retry_count", sq.Expr("retry_count + 1")).
		Set("last_error", errMsg).
		Set("next_retry_at", s.stamp(next)).
		Where(sq.Eq{"id": id})
}

func (s statements) deferUntil(id int64, reason string, next time.Time) sq.UpdateBuilder {
	return s.builder.Update("outbox").
		Set("last_error", reason).
		Set("next_retry_at", s.stamp(next)).
		Where(sq.Eq{"id": id})
}

func (s statements) markDead(id int64, reason string, now time.Time) sq.UpdateBuilder {
	return s.builder.Update("outbox").
		Set("dead_lettered_at", s.stamp(now)).
		Set("dead_letter_reason", reason).
		Where(sq.Eq{"id": id})
}

// publishedBefore deletes delivered messages older than cutoff. Dead
// letters are kept for inspection.
func (s statements) publishedBefore(cutoff time.Time) sq.DeleteBuilder {
	return s.builder.Delete("outbox").
		Where(sq.NotEq{"published_at": nil}).
		Where(sq.Lt{"published_at": s.stamp(cutoff)})
}

func retentionCutoff(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}
