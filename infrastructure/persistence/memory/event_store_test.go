package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliotek/domain/events"
	"bibliotek/pkg/errors"
)

func makeBatch(aggregateID string, eventTypes ...string) []events.DomainEvent {
	batch := make([]events.DomainEvent, len(eventTypes))
	for i, eventType := range eventTypes {
		batch[i] = events.NewDomainEvent(aggregateID, eventType, i+1, nil)
	}
	return batch
}

func TestSaveEventsAssignsVersions(t *testing.T) {
	store := NewEventStore(nil)
	ctx := context.Background()

	saved, err := store.SaveEvents(ctx, "agg-1", makeBatch("agg-1", events.BookCreated, events.BookUpdated), 0)
	require.NoError(t, err)
	require.Len(t, saved, 2)

	assert.Equal(t, 1, saved[0].Version)
	assert.Equal(t, 2, saved[1].Version)
	assert.Equal(t, saved[0].GlobalVersion+1, saved[1].GlobalVersion)
	assert.NotEmpty(t, saved[0].CorrelationID())
	assert.Contains(t, saved[0].Metadata, events.MetaStored)
}

func TestSaveEventsConcurrencyConflict(t *testing.T) {
	store := NewEventStore(nil)
	ctx := context.Background()

	_, err := store.SaveEvents(ctx, "agg-1", makeBatch("agg-1", events.BookCreated), 0)
	require.NoError(t, err)

	// Stale writer: expects version 0 but the stream head is 1.
	_, err = store.SaveEvents(ctx, "agg-1", makeBatch("agg-1", events.BookUpdated), 0)
	require.Error(t, err)
	assert.True(t, errors.IsConcurrencyConflict(err))

	// The conflicting batch left no trace.
	stream, err := store.GetEventsForAggregate(ctx, "agg-1")
	require.NoError(t, err)
	assert.Len(t, stream, 1)
}

func TestSaveEventsValidation(t *testing.T) {
	store := NewEventStore(nil)
	ctx := context.Background()

	_, err := store.SaveEvents(ctx, "", makeBatch("x", events.BookCreated), 0)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))

	_, err = store.SaveEvents(ctx, "agg-1", nil, 0)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}

func TestGetEventsForAggregateUnknownIsEmpty(t *testing.T) {
	store := NewEventStore(nil)
	stream, err := store.GetEventsForAggregate(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, stream)
}

func TestGlobalVersionStrictlyIncreasing(t *testing.T) {
	store := NewEventStore(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	aggregates := []string{"agg-1", "agg-2", "agg-3", "agg-4"}
	for _, id := range aggregates {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := store.SaveEvents(ctx, id, makeBatch(id, events.BookCreated, events.BookUpdated), 0)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	seen := map[int]bool{}
	for _, id := range aggregates {
		stream, err := store.GetEventsForAggregate(ctx, id)
		require.NoError(t, err)
		for _, event := range stream {
			assert.False(t, seen[event.GlobalVersion], "global version %d assigned twice", event.GlobalVersion)
			seen[event.GlobalVersion] = true
		}
	}
	assert.Len(t, seen, len(aggregates)*2)
}

func TestNextGlobalVersionReservesBlocks(t *testing.T) {
	store := NewEventStore(nil)
	ctx := context.Background()

	highest, err := store.NextGlobalVersion(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, highest)

	highest, err = store.NextGlobalVersion(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, highest)

	_, err = store.NextGlobalVersion(ctx, 0)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}

func TestGetEventsByType(t *testing.T) {
	store := NewEventStore(nil)
	ctx := context.Background()

	_, err := store.SaveEvents(ctx, "agg-1", makeBatch("agg-1", events.BookCreated, events.BookUpdated), 0)
	require.NoError(t, err)
	_, err = store.SaveEvents(ctx, "agg-2", makeBatch("agg-2", events.BookCreated), 0)
	require.NoError(t, err)

	created, err := store.GetEventsByType(ctx, events.BookCreated, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Less(t, created[0].GlobalVersion, created[1].GlobalVersion)

	// A window ending in the past excludes everything.
	none, err := store.GetEventsByType(ctx, events.BookCreated, time.Time{}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpcasterAppliedOnRead(t *testing.T) {
	registry := events.NewUpcasterRegistry()
	require.NoError(t, registry.Register(events.BookCreated, 1, 2, func(e events.DomainEvent) (events.DomainEvent, error) {
		payload := map[string]interface{}{"migrated": true}
		for k, v := range e.Payload {
			payload[k] = v
		}
		e.Payload = payload
		return e, nil
	}))

	store := NewEventStore(registry)
	ctx := context.Background()
	_, err := store.SaveEvents(ctx, "agg-1", makeBatch("agg-1", events.BookCreated), 0)
	require.NoError(t, err)

	stream, err := store.GetEventsForAggregate(ctx, "agg-1")
	require.NoError(t, err)
	require.Len(t, stream, 1)
	assert.Equal(t, 2, stream[0].SchemaVersion)
	assert.True(t, stream[0].PayloadBool("migrated"))
}
