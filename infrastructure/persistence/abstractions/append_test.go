package abstractions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliotek/domain/events"
	"bibliotek/infrastructure/persistence/memory"
	"bibliotek/pkg/errors"
)

func TestAppendBatchSucceedsFirstTry(t *testing.T) {
	store := memory.NewEventStore(nil)
	batch := []events.DomainEvent{events.NewDomainEvent("agg-1", events.BookCreated, 1, nil)}

	saved, err := AppendBatch(context.Background(), store, "agg-1", batch, 0, nil)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, 1, saved[0].Version)
}

func TestAppendBatchRebasesAfterConflict(t *testing.T) {
	store := memory.NewEventStore(nil)
	ctx := context.Background()

	_, err := store.SaveEvents(ctx, "agg-1",
		[]events.DomainEvent{events.NewDomainEvent("agg-1", events.BookCreated, 1, nil)}, 0)
	require.NoError(t, err)

	// Caller believes the stream is empty; the first attempt conflicts and
	// the retry re-bases on the real head.
	batch := []events.DomainEvent{events.NewDomainEvent("agg-1", events.BookUpdated, 1, nil)}
	saved, err := AppendBatch(ctx, store, "agg-1", batch, 0, nil)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, 2, saved[0].Version)
}

func TestAppendBatchPropagatesNonConcurrencyErrors(t *testing.T) {
	store := memory.NewEventStore(nil)
	start := time.Now()

	_, err := AppendBatch(context.Background(), store, "", nil, 0, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
	// No retry sleeps for non-retryable errors.
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAppendBackoffBounds(t *testing.T) {
	for attempt := 0; attempt < DefaultAppendAttempts; attempt++ {
		for i := 0; i < 50; i++ {
			delay := appendBackoff(attempt)
			assert.GreaterOrEqual(t, delay, 50*time.Millisecond)
			assert.Less(t, delay, time.Duration(50+100*(1<<attempt))*time.Millisecond)
		}
	}
}
