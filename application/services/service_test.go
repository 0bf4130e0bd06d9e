package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	membus "bibliotek/infrastructure/messaging/memory"
	"bibliotek/infrastructure/persistence/memory"
)

func TestCommitEmptyBatchIsNoOp(t *testing.T) {
	store := memory.NewEventStore(nil)
	bus := membus.NewEventBus(nil)
	writer := newEventWriter(store, bus, nil)

	// An operation that produced no events succeeds without touching the
	// store; the store itself rejects empty batches.
	saved, err := writer.commit(context.Background(), "res-1", nil, "")
	require.NoError(t, err)
	assert.Empty(t, saved)

	stream, err := store.GetEventsForAggregate(context.Background(), "res-1")
	require.NoError(t, err)
	assert.Empty(t, stream)
}
