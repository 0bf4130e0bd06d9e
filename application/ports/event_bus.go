package ports

import (
	"context"

	"bibliotek/domain/events"
)

// EventHandler processes one event delivered by the bus. Returning an error
// triggers the consumer's retry ladder.
type EventHandler func(ctx context.Context, event events.DomainEvent) error

// WildcardEventType subscribes a handler to every routed event.
const WildcardEventType = "*"

// HealthStatus is the result of a bus or store health probe.
type HealthStatus struct {
	Status  string                 `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
}

const (
	HealthUp   = "UP"
	HealthDown = "DOWN"
)

// EventBus is the topic-routed messaging port between services.
type EventBus interface {
	// Init declares the broker topology. Idempotent; concurrent callers
	// block until the first initialization finishes.
	Init(ctx context.Context) error

	// Publish routes the event by its eventType. Events published before
	// Init or during a reconnect fail with EVENT_BUS_UNAVAILABLE.
	Publish(ctx context.Context, event events.DomainEvent) error

	// Subscribe registers a handler and binds the service queue to the
	// routing key. Subscriptions made before Init are queued and applied
	// once the topology exists.
	Subscribe(eventType string, handler EventHandler) error

	// SubscribeToAll registers a wildcard handler.
	SubscribeToAll(handler EventHandler) error

	// Unsubscribe removes one registration of the handler; the last
	// handler for a key unbinds it.
	Unsubscribe(eventType string, handler EventHandler) error

	// BindEventTypes bulk-binds routing keys during wiring.
	BindEventTypes(eventTypes []string) error

	// StartConsuming begins delivery to registered handlers.
	StartConsuming(ctx context.Context) error

	// Shutdown suppresses reconnection and closes channel then connection.
	Shutdown(ctx context.Context) error

	// CheckHealth reports broker reachability and queue depth.
	CheckHealth(ctx context.Context) HealthStatus
}
