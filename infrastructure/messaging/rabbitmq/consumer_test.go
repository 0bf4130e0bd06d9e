package rabbitmq

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliotek/domain/events"
	"bibliotek/infrastructure/config"
	"bibliotek/pkg/errors"
)

func newTestBus() *EventBus {
	cfg := &config.Config{
		ServiceName:            "reservations",
		Environment:            "test",
		RabbitMQEventsExchange: "events",
	}
	return NewEventBus(cfg, nil, NewMetrics(nil, cfg.ServiceName), nil)
}

// ackRecorder captures the consumer's acknowledgement decisions.
type ackRecorder struct {
	acks     int
	nacks    int
	requeued bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.acks++
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple bool, requeue bool) error {
	a.nacks++
	a.requeued = requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	a.nacks++
	a.requeued = requeue
	return nil
}

func makeDelivery(t *testing.T, rec *ackRecorder, headers amqp.Table) amqp.Delivery {
	t.Helper()
	event := events.NewDomainEvent("res-1", events.ReservationCreated, 1, map[string]interface{}{
		"userId": "user-1",
	})
	body, err := event.Marshal()
	require.NoError(t, err)
	return amqp.Delivery{
		Acknowledger: rec,
		Body:         body,
		RoutingKey:   events.ReservationCreated,
		MessageId:    "res-1",
		Headers:      headers,
	}
}

func TestNextRetry(t *testing.T) {
	count, ok := nextRetry(amqp.Table{})
	assert.Equal(t, 1, count)
	assert.True(t, ok)

	count, ok = nextRetry(amqp.Table{"x-retry-count": int32(2)})
	assert.Equal(t, 3, count)
	assert.True(t, ok)

	// The fourth failure exhausts the budget.
	count, ok = nextRetry(amqp.Table{"x-retry-count": int32(3)})
	assert.Equal(t, 4, count)
	assert.False(t, ok)
}

func TestHandleDeliveryAcksOnSuccess(t *testing.T) {
	bus := newTestBus()
	var handled []string
	require.NoError(t, bus.Subscribe(events.ReservationCreated, func(ctx context.Context, e events.DomainEvent) error {
		handled = append(handled, e.EventType)
		return nil
	}))

	rec := &ackRecorder{}
	bus.handleDelivery(context.Background(), makeDelivery(t, rec, nil))

	assert.Equal(t, []string{events.ReservationCreated}, handled)
	assert.Equal(t, 1, rec.acks)
	assert.Equal(t, 0, rec.nacks)
}

func TestHandleDeliveryDeadLettersUnparseableBody(t *testing.T) {
	bus := newTestBus()
	rec := &ackRecorder{}

	bus.handleDelivery(context.Background(), amqp.Delivery{
		Acknowledger: rec,
		Body:         []byte("{not json"),
	})

	assert.Equal(t, 0, rec.acks)
	assert.Equal(t, 1, rec.nacks)
	assert.False(t, rec.requeued, "unparseable messages must dead-letter, not requeue")
}

func TestHandleDeliveryDeadLettersAfterBudgetExhausted(t *testing.T) {
	bus := newTestBus()
	require.NoError(t, bus.Subscribe(events.ReservationCreated, func(ctx context.Context, e events.DomainEvent) error {
		return errors.NewInternalError("projection write failed")
	}))

	rec := &ackRecorder{}
	bus.handleDelivery(context.Background(), makeDelivery(t, rec, amqp.Table{"x-retry-count": int32(maxRetries)}))

	assert.Equal(t, 0, rec.acks)
	assert.Equal(t, 1, rec.nacks)
	assert.False(t, rec.requeued, "the fourth failure goes to the dead-letter exchange")
}

func TestHandleDeliveryRequeuesWhenRetrySchedulingFails(t *testing.T) {
	// With retry budget left but no live channel to park the message in a
	// TTL queue, the delivery is requeued instead of lost.
	bus := newTestBus()
	require.NoError(t, bus.Subscribe(events.ReservationCreated, func(ctx context.Context, e events.DomainEvent) error {
		return errors.NewInternalError("projection write failed")
	}))

	rec := &ackRecorder{}
	bus.handleDelivery(context.Background(), makeDelivery(t, rec, nil))

	assert.Equal(t, 0, rec.acks)
	assert.Equal(t, 1, rec.nacks)
	assert.True(t, rec.requeued)
}

func TestChannelCloseTriggersReconnect(t *testing.T) {
	bus := newTestBus()
	reconnects := make(chan struct{}, 1)
	bus.reconnectFn = func() { reconnects <- struct{}{} }

	connClosed := make(chan *amqp.Error, 1)
	chanClosed := make(chan *amqp.Error, 1)
	go bus.watchClose(connClosed, chanClosed)

	// A server-forced channel close with the connection still open.
	chanClosed <- &amqp.Error{Code: amqp.ChannelError, Reason: "PRECONDITION_FAILED"}

	select {
	case <-reconnects:
	case <-time.After(time.Second):
		t.Fatal("channel-level close did not trigger reconnection")
	}

	// The connection closing afterwards must not trigger a second one.
	close(connClosed)
	select {
	case <-reconnects:
		t.Fatal("cascading close triggered a second reconnection")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGracefulCloseDoesNotReconnect(t *testing.T) {
	bus := newTestBus()
	reconnects := make(chan struct{}, 1)
	bus.reconnectFn = func() { reconnects <- struct{}{} }

	connClosed := make(chan *amqp.Error, 1)
	chanClosed := make(chan *amqp.Error, 1)
	done := make(chan struct{})
	go func() {
		bus.watchClose(connClosed, chanClosed)
		close(done)
	}()

	close(chanClosed)
	<-done
	assert.Empty(t, reconnects)
}

func TestUnsubscribeRemovesSingleRegistration(t *testing.T) {
	bus := newTestBus()

	first := &countingHandler{}
	second := &countingHandler{}
	require.NoError(t, bus.Subscribe(events.ReservationCreated, first.Handle))
	require.NoError(t, bus.Subscribe(events.ReservationCreated, second.Handle))

	// Same method on different receivers shares a code pointer; only one
	// registration may go.
	require.NoError(t, bus.Unsubscribe(events.ReservationCreated, second.Handle))

	event := events.NewDomainEvent("res-1", events.ReservationCreated, 1, nil)
	require.NoError(t, bus.dispatch(context.Background(), event, events.ReservationCreated))
	assert.Equal(t, 1, first.calls+second.calls)
}

type countingHandler struct{ calls int }

func (c *countingHandler) Handle(ctx context.Context, e events.DomainEvent) error {
	c.calls++
	return nil
}
