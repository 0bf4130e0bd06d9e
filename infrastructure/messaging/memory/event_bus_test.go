package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliotek/domain/events"
)

type recordingHandler struct{ seen []events.DomainEvent }

func (r *recordingHandler) Handle(ctx context.Context, e events.DomainEvent) error {
	r.seen = append(r.seen, e)
	return nil
}

func TestPublishRoundTripsWireFormat(t *testing.T) {
	bus := NewEventBus(nil)
	handler := &recordingHandler{}
	require.NoError(t, bus.Subscribe(events.BookCreated, handler.Handle))

	event := events.NewDomainEvent("book-1", events.BookCreated, 1, map[string]interface{}{
		"title": "Dune",
	})
	require.NoError(t, bus.Publish(context.Background(), event))

	require.Len(t, handler.seen, 1)
	assert.Equal(t, "book-1", handler.seen[0].AggregateID)
	assert.Equal(t, "Dune", handler.seen[0].PayloadString("title"))
}

func TestWildcardHandlersRunAfterSpecific(t *testing.T) {
	bus := NewEventBus(nil)
	var order []string
	require.NoError(t, bus.Subscribe(events.BookCreated, func(ctx context.Context, e events.DomainEvent) error {
		order = append(order, "specific")
		return nil
	}))
	require.NoError(t, bus.SubscribeToAll(func(ctx context.Context, e events.DomainEvent) error {
		order = append(order, "wildcard")
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), events.NewDomainEvent("book-1", events.BookCreated, 1, nil)))
	assert.Equal(t, []string{"specific", "wildcard"}, order)
}

func TestUnsubscribeRemovesSingleRegistration(t *testing.T) {
	bus := NewEventBus(nil)

	first := &recordingHandler{}
	second := &recordingHandler{}
	require.NoError(t, bus.Subscribe(events.BookCreated, first.Handle))
	require.NoError(t, bus.Subscribe(events.BookCreated, second.Handle))

	// The same method on two receivers shares a code pointer; unsubscribing
	// one must leave the other registration in place.
	require.NoError(t, bus.Unsubscribe(events.BookCreated, second.Handle))

	require.NoError(t, bus.Publish(context.Background(), events.NewDomainEvent("book-1", events.BookCreated, 1, nil)))
	assert.Equal(t, 1, len(first.seen)+len(second.seen))
}
