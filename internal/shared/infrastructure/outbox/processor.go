package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/subtrack/internal/shared/domain"
	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/subtrack/pkg/observability"
)

// ProcessorConfig holds configuration for the outbox processor.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	// DeferDelay is how long a deferred message waits before the next
	// attempt. Deferrals do not count against MaxRetries.
	DeferDelay time.Duration
	// PublishTimeout bounds a single publish call. Zero means no bound
	// beyond the caller's context.
	PublishTimeout time.Duration
	// Metrics receives per-routing-key delivery timings. Nil disables them.
	Metrics observability.Metrics
}

// DefaultProcessorConfig returns the defaults used when nothing is configured.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     time.Second,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
		DeferDelay:       30 * time.Second,
		PublishTimeout:   30 * time.Second,
	}
}

// outcome is the result of one delivery attempt.
type outcome int

const (
	delivered outcome = iota
	retryLater
	deferred
	deadLettered
)

// Processor polls the outbox and hands pending messages to the publisher.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	metrics   observability.Metrics
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// NewProcessor creates a new outbox processor.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultProcessorConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultProcessorConfig().BatchSize
	}
	if config.DeferDelay <= 0 {
		config.DeferDelay = DefaultProcessorConfig().DeferDelay
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start runs the polling loop in a goroutine until Stop is called or ctx
// is done. Starting a running processor is a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	go func() {
		defer close(done)
		p.loop(loopCtx)
	}()

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"max_retries", p.config.MaxRetries,
	)
	return nil
}

// Stop cancels the polling loop and waits for the in-flight batch.
func (p *Processor) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("outbox processor stopped")
}

// IsRunning reports whether the polling loop is active.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *Processor) loop(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("failed to process outbox batch", "error", err)
			}
		}
	}
}

// ProcessOnce processes a single batch synchronously.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	return p.processBatch(ctx)
}

func (p *Processor) processBatch(ctx context.Context) error {
	messages, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.noteError(err)
		return err
	}
	p.noteBatch(messages)

	for _, msg := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.settle(ctx, msg, p.deliver(ctx, msg))
	}
	return nil
}

// deliver publishes msg once and reports the error, if any.
func (p *Processor) deliver(ctx context.Context, msg *Message) error {
	if p.config.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.PublishTimeout)
		defer cancel()
	}

	started := time.Now()
	err := p.publisher.Publish(ctx, msg.RoutingKey, msg.Payload)
	p.metrics.Timing(observability.MetricOutboxPublishDuration, time.Since(started),
		observability.T("routing_key", msg.RoutingKey),
		observability.T("ok", boolTag(err == nil)),
	)
	return err
}

// settle records the result of a delivery attempt on the stored message.
func (p *Processor) settle(ctx context.Context, msg *Message, publishErr error) {
	result := delivered
	switch {
	case publishErr == nil:
	case errors.Is(publishErr, eventbus.ErrDeferred):
		result = deferred
	case p.exhausted(msg):
		result = deadLettered
	default:
		result = retryLater
	}

	log := p.logger.With(
		"id", msg.ID,
		"event_id", msg.EventID,
		"routing_key", msg.RoutingKey,
	)

	var markErr error
	switch result {
	case delivered:
		if markErr = p.repo.MarkPublished(ctx, msg.ID); markErr == nil {
			p.noteOutcome(delivered, nil)
		}
	case retryLater:
		next := time.Now().Add(p.backoff(msg.RetryCount + 1))
		log.Warn("outbox delivery failed, will retry",
			append(traceAttrs(msg), "retry_count", msg.RetryCount+1, "next_retry_at", next, "error", publishErr)...)
		markErr = p.repo.MarkFailed(ctx, msg.ID, publishErr.Error(), next)
		p.noteOutcome(retryLater, publishErr)
	case deferred:
		next := time.Now().Add(p.config.DeferDelay)
		log.Info("outbox delivery deferred",
			append(traceAttrs(msg), "next_retry_at", next, "reason", publishErr)...)
		markErr = p.repo.Defer(ctx, msg.ID, publishErr.Error(), next)
		p.noteOutcome(deferred, nil)
	case deadLettered:
		log.Error("outbox message dead-lettered",
			append(traceAttrs(msg), "retry_count", msg.RetryCount+1, "error", publishErr)...)
		markErr = p.repo.MarkDead(ctx, msg.ID, publishErr.Error())
		p.noteOutcome(deadLettered, publishErr)
	}

	if markErr != nil {
		log.Error("failed to record outbox delivery result", "error", markErr)
	}
}

// exhausted reports whether the attempt in progress is the last one allowed.
func (p *Processor) exhausted(msg *Message) bool {
	return p.config.MaxRetries <= 0 || msg.RetryCount+1 >= p.config.MaxRetries
}

// backoff doubles from RetryBackoffBase for each attempt, capped at
// RetryBackoffMax.
func (p *Processor) backoff(attempt int) time.Duration {
	delay := p.config.RetryBackoffBase
	if delay <= 0 {
		delay = time.Second
	}
	limit := p.config.RetryBackoffMax
	if limit <= 0 {
		limit = time.Minute
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	return min(delay, limit)
}

// traceAttrs pulls the tracing ids out of the stored event metadata.
func traceAttrs(msg *Message) []any {
	if len(msg.Metadata) == 0 {
		return nil
	}
	var metadata domain.EventMetadata
	if err := json.Unmarshal(msg.Metadata, &metadata); err != nil {
		return nil
	}
	return []any{
		"correlation_id", metadata.CorrelationID.String(),
		"causation_id", metadata.CausationID.String(),
		"user_id", metadata.UserID,
	}
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Cleanup deletes published messages older than retentionDays. A
// non-positive retention keeps everything.
func (p *Processor) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	deleted, err := p.repo.DeleteOld(ctx, retentionDays)
	if err != nil {
		p.noteError(err)
		return 0, err
	}
	if deleted > 0 {
		p.logger.Info("outbox cleanup removed published messages",
			"deleted", deleted,
			"retention_days", retentionDays,
		)
	}
	return deleted, nil
}

// Stats is a point-in-time view of the processor.
type Stats struct {
	IsRunning       bool
	PublishedCount  uint64
	FailedCount     uint64
	DeferredCount   uint64
	DeadCount       uint64
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
	OldestMessageAt *time.Time
}

// GetStats returns current processor statistics.
func (p *Processor) GetStats() Stats {
	p.statsMu.Lock()
	stats := p.stats
	p.statsMu.Unlock()

	stats.IsRunning = p.IsRunning()
	return stats
}

func (p *Processor) noteOutcome(result outcome, err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	switch result {
	case delivered:
		p.stats.PublishedCount++
		return
	case deferred:
		p.stats.DeferredCount++
		return
	case retryLater:
		p.stats.FailedCount++
	case deadLettered:
		p.stats.DeadCount++
	}
	p.setLastError(err)
}

func (p *Processor) noteError(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.setLastError(err)
}

// setLastError requires statsMu.
func (p *Processor) setLastError(err error) {
	if err == nil {
		return
	}
	now := time.Now()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}

// noteBatch updates the lag figures from the batch just fetched.
func (p *Processor) noteBatch(messages []*Message) {
	now := time.Now()

	var oldest *time.Time
	for _, msg := range messages {
		if oldest == nil || msg.CreatedAt.Before(*oldest) {
			created := msg.CreatedAt
			oldest = &created
		}
	}

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.LastProcessedAt = &now
	p.stats.OldestMessageAt = oldest
	p.stats.LagSeconds = 0
	if oldest != nil {
		p.stats.LagSeconds = now.Sub(*oldest).Seconds()
	}
}
