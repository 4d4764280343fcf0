package outbox

import (
	"context"
	"time"
)

// Repository persists outbox messages.
type Repository interface {
	// Save stores a new message and assigns its ID.
	Save(ctx context.Context, msg *Message) error

	// SaveBatch stores several messages atomically, joining a transaction in ctx.
	SaveBatch(ctx context.Context, msgs []*Message) error

	// GetUnpublished returns pending messages that are due, oldest first.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)

	// MarkPublished records a successful relay.
	MarkPublished(ctx context.Context, id int64) error

	// MarkFailed records a failed attempt and when to try again.
	MarkFailed(ctx context.Context, id int64, err string, nextRetryAt time.Time) error

	// Defer reschedules a message without counting an attempt.
	Defer(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error

	// MarkDead moves a message out of the retry loop.
	MarkDead(ctx context.Context, id int64, reason string) error

	// DeleteOld removes published messages older than the retention period.
	DeleteOld(ctx context.Context, olderThanDays int) (int64, error)
}
