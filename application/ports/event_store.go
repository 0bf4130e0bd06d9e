package ports

import (
	"context"
	"time"

	"bibliotek/domain/events"
)

// EventStore is the append-only persistence port for domain events.
// Implementations must enforce per-aggregate optimistic concurrency and
// assign monotonically increasing global versions.
type EventStore interface {
	// SaveEvents appends the batch to the aggregate's stream. The batch must
	// be contiguous and start at expectedVersion+1; a mismatch with the
	// stored head fails with CONCURRENCY_CONFLICT, a uniqueness violation on
	// (aggregateId, version) with DUPLICATE_EVENT. On success the returned
	// events carry their assigned global versions and stored=true metadata.
	SaveEvents(ctx context.Context, aggregateID string, batch []events.DomainEvent, expectedVersion int) ([]events.DomainEvent, error)

	// GetEventsForAggregate returns the aggregate's full stream ordered by
	// version. An unknown aggregate yields an empty slice, not an error.
	GetEventsForAggregate(ctx context.Context, aggregateID string) ([]events.DomainEvent, error)

	// GetEventsByType returns events of one type within the half-open window
	// [from, to), ordered by global version. Zero times mean unbounded.
	GetEventsByType(ctx context.Context, eventType string, from, to time.Time) ([]events.DomainEvent, error)

	// NextGlobalVersion atomically reserves n global version numbers and
	// returns the highest reserved; the block starts at highest-n+1.
	NextGlobalVersion(ctx context.Context, n int) (int, error)

	// CheckHealth reports store reachability.
	CheckHealth(ctx context.Context) HealthStatus
}
