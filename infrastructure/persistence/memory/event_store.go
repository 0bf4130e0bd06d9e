package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"bibliotek/application/ports"
	"bibliotek/domain/events"
	"bibliotek/pkg/errors"
)

// EventStore is the in-memory event store used by tests and local bootstrap.
// It enforces the same contract as the Mongo store: per-aggregate optimistic
// concurrency, contiguous versions and a strictly increasing global sequence.
type EventStore struct {
	mu       sync.Mutex
	streams  map[string][]events.DomainEvent
	global   int
	upcaster *events.UpcasterRegistry
}

// NewEventStore creates an empty in-memory store.
func NewEventStore(upcaster *events.UpcasterRegistry) *EventStore {
	if upcaster == nil {
		upcaster = events.NewUpcasterRegistry()
	}
	return &EventStore{
		streams:  make(map[string][]events.DomainEvent),
		upcaster: upcaster,
	}
}

// SaveEvents appends the batch under the optimistic concurrency check.
func (s *EventStore) SaveEvents(ctx context.Context, aggregateID string, batch []events.DomainEvent, expectedVersion int) ([]events.DomainEvent, error) {
	if aggregateID == "" {
		return nil, errors.NewValidationError("aggregateId is required")
	}
	if len(batch) == 0 {
		return nil, errors.NewValidationError("events batch is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]
	currentVersion := 0
	if len(stream) > 0 {
		currentVersion = stream[len(stream)-1].Version
	}
	if currentVersion != expectedVersion {
		return nil, errors.NewConcurrencyConflictError(aggregateID, expectedVersion, currentVersion)
	}

	now := time.Now().UTC()
	stamped := make([]events.DomainEvent, len(batch))
	for i, event := range batch {
		event.AggregateID = aggregateID
		event.Version = expectedVersion + i + 1
		s.global++
		event.GlobalVersion = s.global
		if event.Timestamp.IsZero() {
			event.Timestamp = now
		}
		event.EnsureCorrelationID()
		meta := make(map[string]interface{}, len(event.Metadata)+1)
		for k, v := range event.Metadata {
			meta[k] = v
		}
		meta[events.MetaStored] = now
		event.Metadata = meta
		stamped[i] = event
	}

	s.streams[aggregateID] = append(stream, stamped...)
	return stamped, nil
}

// GetEventsForAggregate returns the stream ordered by version.
func (s *EventStore) GetEventsForAggregate(ctx context.Context, aggregateID string) ([]events.DomainEvent, error) {
	if aggregateID == "" {
		return nil, errors.NewValidationError("aggregateId is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	stream := make([]events.DomainEvent, len(s.streams[aggregateID]))
	copy(stream, s.streams[aggregateID])
	s.mu.Unlock()

	return s.upcastAll(stream)
}

// GetEventsByType returns events of one type within [from, to), ordered by
// global version.
func (s *EventStore) GetEventsByType(ctx context.Context, eventType string, from, to time.Time) ([]events.DomainEvent, error) {
	if eventType == "" {
		return nil, errors.NewValidationError("eventType is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	var matched []events.DomainEvent
	for _, stream := range s.streams {
		for _, event := range stream {
			if event.EventType != eventType {
				continue
			}
			if !from.IsZero() && event.Timestamp.Before(from) {
				continue
			}
			if !to.IsZero() && !event.Timestamp.Before(to) {
				continue
			}
			matched = append(matched, event)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].GlobalVersion < matched[j].GlobalVersion })
	return s.upcastAll(matched)
}

// NextGlobalVersion atomically reserves n global versions.
func (s *EventStore) NextGlobalVersion(ctx context.Context, n int) (int, error) {
	if n < 1 {
		return 0, errors.NewValidationError("block size must be at least 1")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.global += n
	return s.global, nil
}

// CheckHealth always reports UP; the store lives in process memory.
func (s *EventStore) CheckHealth(ctx context.Context) ports.HealthStatus {
	s.mu.Lock()
	streams := len(s.streams)
	s.mu.Unlock()
	return ports.HealthStatus{
		Status:  ports.HealthUp,
		Details: map[string]interface{}{"streams": streams},
	}
}

func (s *EventStore) upcastAll(stream []events.DomainEvent) ([]events.DomainEvent, error) {
	out := make([]events.DomainEvent, 0, len(stream))
	for _, event := range stream {
		upgraded, err := s.upcaster.Apply(event)
		if err != nil {
			return nil, errors.NewInfrastructureError(errors.CodeEventRetrievalFailed, "failed to upcast event", err)
		}
		out = append(out, upgraded)
	}
	return out, nil
}
