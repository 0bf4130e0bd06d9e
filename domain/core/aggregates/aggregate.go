package aggregates

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"bibliotek/domain/events"
	"bibliotek/pkg/errors"
)

// AggregateRoot carries the identity, version and uncommitted event buffer
// shared by every aggregate. Concrete aggregates embed it and supply the fold.
type AggregateRoot struct {
	id          string
	version     int
	uncommitted []events.DomainEvent
}

// ID returns the aggregate identifier.
func (a *AggregateRoot) ID() string {
	return a.id
}

// Version returns the version of the last applied event.
func (a *AggregateRoot) Version() int {
	return a.version
}

// UncommittedEvents returns the events recorded since the last save.
func (a *AggregateRoot) UncommittedEvents() []events.DomainEvent {
	out := make([]events.DomainEvent, len(a.uncommitted))
	copy(out, a.uncommitted)
	return out
}

// ClearUncommittedEvents drops the buffer after a successful save.
func (a *AggregateRoot) ClearUncommittedEvents() {
	a.uncommitted = nil
}

// record creates the next event in the stream and buffers it. The caller is
// responsible for folding the event into its own state.
func (a *AggregateRoot) record(eventType string, payload map[string]interface{}) events.DomainEvent {
	event := events.NewDomainEvent(a.id, eventType, a.version+1, payload)
	a.version = event.Version
	a.uncommitted = append(a.uncommitted, event)
	return event
}

// folder is the per-aggregate fold. It must be pure and total over known
// event types and return false for types it does not recognize.
type folder func(event events.DomainEvent) bool

// rehydrate reconstructs an aggregate from its event stream. Events are
// sorted by version, the first must be a *_CREATED event, and unknown event
// types are logged and skipped so old services tolerate newer streams.
func (a *AggregateRoot) rehydrate(history []events.DomainEvent, fold folder, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(history) == 0 {
		return errors.NewInvalidEventStreamError("", "empty event stream")
	}

	sorted := make([]events.DomainEvent, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	first := sorted[0]
	if !strings.HasSuffix(first.EventType, "_CREATED") {
		return errors.NewInvalidEventStreamError(first.AggregateID,
			"first event must be a creation event, got "+first.EventType)
	}

	a.id = first.AggregateID
	a.version = 0
	a.uncommitted = nil

	for _, event := range sorted {
		if !fold(event) {
			logger.Warn("ignoring unknown event type during rehydration",
				zap.String("aggregateId", a.id),
				zap.String("eventType", event.EventType),
				zap.Int("version", event.Version))
		}
		// The version advances even past unknown events; the stream position
		// is what optimistic concurrency fences on.
		a.version = event.Version
	}
	return nil
}
