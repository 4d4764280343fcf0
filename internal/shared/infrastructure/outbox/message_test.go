package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/felixgeelhaar/subtrack/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleEvent struct {
	domain.BaseEvent
	SubscriptionID string `json:"subscriptionId"`
}

func TestNewMessage(t *testing.T) {
	aggregateID := uuid.New()
	event := &sampleEvent{
		BaseEvent:      domain.NewBaseEvent(aggregateID, "Subscription", "subscription.created"),
		SubscriptionID: aggregateID.String(),
	}
	event.Stamp(domain.EventMetadata{CorrelationID: uuid.New(), UserID: "u1"})

	msg, err := NewMessage(event)
	require.NoError(t, err)

	assert.Equal(t, event.EventID(), msg.EventID)
	assert.Equal(t, aggregateID, msg.AggregateID)
	assert.Equal(t, "Subscription", msg.AggregateType)
	assert.Equal(t, "subscription.created", msg.RoutingKey)

	env, err := DecodeEnvelope(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, event.EventID(), env.EventID)
	assert.Equal(t, "subscription.created", env.RoutingKey)
	assert.Equal(t, aggregateID, env.AggregateID)
	assert.Equal(t, "u1", env.Metadata.UserID)
	assert.JSONEq(t, `{"subscriptionId":"`+aggregateID.String()+`"}`, string(env.Data))

	var meta domain.EventMetadata
	require.NoError(t, json.Unmarshal(msg.Metadata, &meta))
	assert.Equal(t, "u1", meta.UserID)
	assert.False(t, msg.IsPublished())
}

func TestMessage_CanRetry(t *testing.T) {
	msg := &Message{RetryCount: 2}
	assert.True(t, msg.CanRetry(3))
	assert.False(t, msg.CanRetry(2))
}

func TestRetryBackoff(t *testing.T) {
	p := NewProcessor(NewInMemoryRepository(), nil, ProcessorConfig{
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  10 * time.Second,
	}, nil)

	assert.Equal(t, time.Second, p.backoff(0))
	assert.Equal(t, time.Second, p.backoff(1))
	assert.Equal(t, 2*time.Second, p.backoff(2))
	assert.Equal(t, 8*time.Second, p.backoff(4))
	assert.Equal(t, 10*time.Second, p.backoff(5))
	assert.Equal(t, 10*time.Second, p.backoff(64))
}
