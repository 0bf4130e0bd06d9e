package memory

import (
	"context"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/domain/events"
	"bibliotek/pkg/errors"
)

// EventBus is a synchronous in-process bus with the same port contract as
// the broker-backed one. Tests and single-process bootstrap use it; events
// pass through their JSON wire format so handlers see exactly what a broker
// consumer would.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]ports.EventHandler
	running  bool
	logger   *zap.Logger
}

// NewEventBus creates an empty in-memory bus.
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		handlers: make(map[string][]ports.EventHandler),
		logger:   logger,
	}
}

// Init implements ports.EventBus. There is no topology to declare.
func (b *EventBus) Init(ctx context.Context) error {
	return nil
}

// Publish dispatches the event synchronously to specific handlers first,
// then wildcard handlers. The first handler error aborts the remainder, as
// the broker consumer would abort processing of the message.
func (b *EventBus) Publish(ctx context.Context, event events.DomainEvent) error {
	data, err := event.Marshal()
	if err != nil {
		return errors.NewInternalError("failed to encode event").WithCause(err)
	}
	decoded, err := events.Unmarshal(data)
	if err != nil {
		return errors.NewInternalError("failed to decode event").WithCause(err)
	}

	b.mu.RLock()
	handlers := append([]ports.EventHandler{}, b.handlers[decoded.EventType]...)
	handlers = append(handlers, b.handlers[ports.WildcardEventType]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, decoded); err != nil {
			b.logger.Warn("in-memory handler failed",
				zap.String("eventType", decoded.EventType),
				zap.Error(err))
			return err
		}
	}
	return nil
}

// Subscribe registers a handler for one event type.
func (b *EventBus) Subscribe(eventType string, handler ports.EventHandler) error {
	if eventType == "" || handler == nil {
		return errors.NewValidationError("eventType and handler are required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeToAll registers a wildcard handler.
func (b *EventBus) SubscribeToAll(handler ports.EventHandler) error {
	return b.Subscribe(ports.WildcardEventType, handler)
}

// Unsubscribe removes one registration of the handler. Func values compare
// only by code pointer, so the same method registered for several receivers
// is indistinguishable; the most recent matching registration is removed.
func (b *EventBus) Unsubscribe(eventType string, handler ports.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	target := reflect.ValueOf(handler).Pointer()
	list := b.handlers[eventType]
	for i := len(list) - 1; i >= 0; i-- {
		if reflect.ValueOf(list[i]).Pointer() == target {
			list = append(append([]ports.EventHandler{}, list[:i]...), list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.handlers, eventType)
	} else {
		b.handlers[eventType] = list
	}
	return nil
}

// BindEventTypes implements ports.EventBus. Bindings are implicit here.
func (b *EventBus) BindEventTypes(eventTypes []string) error {
	return nil
}

// StartConsuming implements ports.EventBus.
func (b *EventBus) StartConsuming(ctx context.Context) error {
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()
	return nil
}

// Shutdown implements ports.EventBus.
func (b *EventBus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
	return nil
}

// CheckHealth implements ports.EventBus.
func (b *EventBus) CheckHealth(ctx context.Context) ports.HealthStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return ports.HealthStatus{
		Status: ports.HealthUp,
		Details: map[string]interface{}{
			"handlerCount": len(b.handlers),
		},
	}
}
