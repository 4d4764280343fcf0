// Package eventbus relays outbox payloads to their destinations.
package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
)

// ErrDeferred marks a publish the destination cannot accept yet. The
// outbox keeps such messages queued without spending a retry.
var ErrDeferred = errors.New("delivery deferred")

// Publisher defines the interface for publishing events to a message broker.
type Publisher interface {
	// Publish sends a message to the event bus.
	Publish(ctx context.Context, routingKey string, payload []byte) error

	// Close closes the publisher connection.
	Close() error
}

// NoopPublisher is a no-op publisher used when no broker is configured.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that does nothing.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

// Publish logs the message but doesn't actually publish.
func (p *NoopPublisher) Publish(_ context.Context, routingKey string, payload []byte) error {
	p.logger.Debug("noop publish",
		"routing_key", routingKey,
		"size", len(payload),
	)
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error {
	return nil
}

type route struct {
	prefix    string
	publisher Publisher
}

// RoutingPublisher sends each message to the publisher registered for the
// longest matching routing key prefix, or to the fallback.
type RoutingPublisher struct {
	routes   []route
	fallback Publisher
}

// NewRoutingPublisher creates a router that uses fallback for unmatched keys.
func NewRoutingPublisher(fallback Publisher) *RoutingPublisher {
	return &RoutingPublisher{fallback: fallback}
}

// Route registers publisher for routing keys starting with prefix.
func (p *RoutingPublisher) Route(prefix string, publisher Publisher) *RoutingPublisher {
	p.routes = append(p.routes, route{prefix: prefix, publisher: publisher})
	sort.SliceStable(p.routes, func(i, j int) bool {
		return len(p.routes[i].prefix) > len(p.routes[j].prefix)
	})
	return p
}

// Publish forwards to the matching publisher.
func (p *RoutingPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	return p.target(routingKey).Publish(ctx, routingKey, payload)
}

func (p *RoutingPublisher) target(routingKey string) Publisher {
	for _, r := range p.routes {
		if strings.HasPrefix(routingKey, r.prefix) {
			return r.publisher
		}
	}
	return p.fallback
}

// Close closes every distinct publisher once.
func (p *RoutingPublisher) Close() error {
	seen := make(map[Publisher]bool)
	var errs []error
	closeOnce := func(pub Publisher) {
		if pub == nil || seen[pub] {
			return
		}
		seen[pub] = true
		if err := pub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, r := range p.routes {
		closeOnce(r.publisher)
	}
	closeOnce(p.fallback)
	return errors.Join(errs...)
}
