package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestTopologyNames(t *testing.T) {
	topo := newTopology("events", "reservations", "production")

	assert.Equal(t, "events", topo.exchange)
	assert.Equal(t, "events.alternate", topo.alternateExchange)
	assert.Equal(t, "events.deadletter", topo.deadLetterExchange)
	assert.Equal(t, "reservations.production.queue", topo.queue)
	assert.Equal(t, "reservations.production.queue.deadletter", topo.deadLetterQueue)
	assert.Equal(t, "reservations.unroutable", topo.unroutableQueue)
	assert.Equal(t, "reservations.production.queue.retry.2", topo.retryQueue(2))
}

func TestQueueArgs(t *testing.T) {
	topo := newTopology("events", "books", "development")

	args := topo.queueArgs()
	assert.Equal(t, "events.deadletter", args["x-dead-letter-exchange"])
	assert.Equal(t, int64(7*24*time.Hour/time.Millisecond), args["x-message-ttl"])
	assert.Equal(t, int64(1_000_000), args["x-max-length"])

	retryArgs := topo.retryQueueArgs(2*time.Second, "BOOK_CREATED")
	assert.Equal(t, int64(2000), retryArgs["x-message-ttl"])
	assert.Equal(t, "events", retryArgs["x-dead-letter-exchange"])
	assert.Equal(t, "BOOK_CREATED", retryArgs["x-dead-letter-routing-key"])
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, time.Second, retryDelay(1))
	assert.Equal(t, 2*time.Second, retryDelay(2))
	assert.Equal(t, 4*time.Second, retryDelay(3))
}

func TestReconnectDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, reconnectDelay(1))
	assert.Equal(t, 16*time.Second, reconnectDelay(4))
	assert.Equal(t, 30*time.Second, reconnectDelay(5))
	assert.Equal(t, 30*time.Second, reconnectDelay(9))
}

func TestSalvagerInterval(t *testing.T) {
	assert.Equal(t, time.Second, salvagerInterval(0))
	assert.Equal(t, 1500*time.Millisecond, salvagerInterval(1))
	assert.Equal(t, 2250*time.Millisecond, salvagerInterval(2))
	// The exponent is capped at 5 empty cycles.
	assert.Equal(t, salvagerInterval(5), salvagerInterval(20))
	assert.LessOrEqual(t, salvagerInterval(20), salvagerMaxInterval)
}

func TestBindingKey(t *testing.T) {
	assert.Equal(t, "#", bindingKey("*"))
	assert.Equal(t, "BOOK_CREATED", bindingKey("BOOK_CREATED"))
}

func TestHeaderInt(t *testing.T) {
	assert.Equal(t, 0, headerInt(amqp.Table{}, "x-retry-count"))
	assert.Equal(t, 2, headerInt(amqp.Table{"x-retry-count": int32(2)}, "x-retry-count"))
	assert.Equal(t, 3, headerInt(amqp.Table{"x-retry-count": int64(3)}, "x-retry-count"))
	assert.Equal(t, 4, headerInt(amqp.Table{"x-retry-count": float64(4)}, "x-retry-count"))
}
