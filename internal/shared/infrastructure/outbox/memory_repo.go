package outbox

import (
	"context"
	"slices"
	"sync"
	"time"
)

// InMemoryRepository keeps outbox messages in process memory. The local
// container and tests use it.
type InMemoryRepository struct {
	mu     sync.Mutex
	byID   map[int64]*Message
	order  []int64
	lastID int64
	clock  func() time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{byID: make(map[int64]*Message), clock: time.Now}
}

func (r *InMemoryRepository) Save(ctx context.Context, msg *Message) error {
	return r.SaveBatch(ctx, []*Message{msg})
}

func (r *InMemoryRepository) SaveBatch(_ context.Context, msgs []*Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		r.lastID++
		msg.ID = r.lastID
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = r.clock().UTC()
		}
		r.byID[msg.ID] = msg
		r.order = append(r.order, msg.ID)
	}
	return nil
}

// GetUnpublished returns copies so callers cannot mutate stored state.
func (r *InMemoryRepository) GetUnpublished(_ context.Context, limit int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	var due []*Message
	for _, id := range r.order {
		if len(due) >= limit {
			break
		}
		msg := r.byID[id]
		if msg.PublishedAt != nil || msg.DeadLetteredAt != nil {
			continue
		}
		if msg.NextRetryAt != nil && msg.NextRetryAt.After(now) {
			continue
		}
		cp := *msg
		due = append(due, &cp)
	}
	return due, nil
}

func (r *InMemoryRepository) MarkPublished(_ context.Context, id int64) error {
	r.update(id, func(msg *Message, now time.Time) {
		msg.PublishedAt = &now
		msg.DeadLetteredAt = nil
	})
	return nil
}

func (r *InMemoryRepository) MarkFailed(_ context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	r.update(id, func(msg *Message, _ time.Time) {
		msg.RetryCount++
		msg.LastError = &errMsg
		msg.NextRetryAt = &nextRetryAt
	})
	return nil
}

func (r *InMemoryRepository) Defer(_ context.Context, id int64, reason string, nextRetryAt time.Time) error {
	r.update(id, func(msg *Message, _ time.Time) {
		msg.LastError = &reason
		msg.NextRetryAt = &nextRetryAt
	})
	return nil
}

func (r *InMemoryRepository) MarkDead(_ context.Context, id int64, reason string) error {
	r.update(id, func(msg *Message, now time.Time) {
		msg.DeadLetteredAt = &now
		msg.DeadLetterReason = &reason
	})
	return nil
}

func (r *InMemoryRepository) DeleteOld(_ context.Context, olderThanDays int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := retentionCutoff(r.clock(), olderThanDays)
	before := len(r.order)
	r.order = slices.DeleteFunc(r.order, func(id int64) bool {
		msg := r.byID[id]
		if msg.PublishedAt == nil || !msg.PublishedAt.Before(cutoff) {
			return false
		}
		delete(r.byID, id)
		return true
	})
	return int64(before - len(r.order)), nil
}

// Messages returns a copy of every stored message in insertion order.
func (r *InMemoryRepository) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

// update applies fn to the stored message. Unknown ids are ignored.
func (r *InMemoryRepository) update(id int64, fn func(msg *Message, now time.Time)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := r.byID[id]; ok {
		fn(msg, r.clock())
	}
}
