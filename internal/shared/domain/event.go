package domain

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact raised by an aggregate and relayed through the outbox.
type DomainEvent interface {
	EventID() uuid.UUID
	AggregateID() uuid.UUID
	AggregateType() string
	RoutingKey() string
	OccurredAt() time.Time
	Metadata() EventMetadata
}

// Stampable is implemented by events that accept tracing metadata after
// they are raised.
type Stampable interface {
	Stamp(EventMetadata)
}

// EventMetadata traces an event back to the request and caller behind it.
// UserID is the caller's opaque identity.
type EventMetadata struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	CausationID   uuid.UUID `json:"causation_id"`
	UserID        string    `json:"user_id,omitempty"`
}

// NewEventMetadata opens a causation step under correlationID. A
// correlation id that is not a UUID is replaced by a fresh one.
func NewEventMetadata(userID, correlationID string) EventMetadata {
	corr, err := uuid.Parse(correlationID)
	if err != nil {
		corr = uuid.New()
	}
	return EventMetadata{CorrelationID: corr, CausationID: uuid.New(), UserID: userID}
}

// BaseEvent is embedded by concrete events for the envelope fields.
type BaseEvent struct {
	id         uuid.UUID
	aggregate  uuid.UUID
	kind       string
	routingKey string
	at         time.Time
	metadata   EventMetadata
}

// NewBaseEvent stamps a new event id and the current UTC time.
func NewBaseEvent(aggregateID uuid.UUID, aggregateType, routingKey string) BaseEvent {
	return BaseEvent{
		id:         uuid.New(),
		aggregate:  aggregateID,
		kind:       aggregateType,
		routingKey: routingKey,
		at:         time.Now().UTC(),
	}
}

func (e BaseEvent) EventID() uuid.UUID      { return e.id }
func (e BaseEvent) AggregateID() uuid.UUID  { return e.aggregate }
func (e BaseEvent) AggregateType() string   { return e.kind }
func (e BaseEvent) RoutingKey() string      { return e.routingKey }
func (e BaseEvent) OccurredAt() time.Time   { return e.at }
func (e BaseEvent) Metadata() EventMetadata { return e.metadata }

func (e *BaseEvent) Stamp(metadata EventMetadata) { e.metadata = metadata }
