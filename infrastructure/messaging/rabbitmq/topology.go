package rabbitmq

import (
	"fmt"
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	queueMessageTTL = 7 * 24 * time.Hour
	queueMaxLength  = 1_000_000

	prefetchCount = 50

	// Consumer retry ladder: up to maxRetries redeliveries through TTL
	// queues, then the message dead-letters.
	maxRetries = 3

	// Reconnection gives up after this many consecutive failures and the
	// process exits so the orchestrator restarts it.
	maxReconnectAttempts = 10

	salvagerBatchSize   = 10
	salvagerMinInterval = time.Second
	salvagerMaxInterval = 30 * time.Second
)

// topology derives every exchange and queue name from the configured main
// exchange and the service identity.
type topology struct {
	exchange          string
	alternateExchange string
	deadLetterExchange string
	queue             string
	deadLetterQueue   string
	unroutableQueue   string
}

func newTopology(exchange, serviceName, environment string) topology {
	queue := fmt.Sprintf("%s.%s.queue", serviceName, environment)
	return topology{
		exchange:           exchange,
		alternateExchange:  exchange + ".alternate",
		deadLetterExchange: exchange + ".deadletter",
		queue:              queue,
		deadLetterQueue:    queue + ".deadletter",
		unroutableQueue:    serviceName + ".unroutable",
	}
}

func (t topology) retryQueue(retryCount int) string {
	return fmt.Sprintf("%s.retry.%d", t.queue, retryCount)
}

func (t topology) queueArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange": t.deadLetterExchange,
		"x-message-ttl":          queueMessageTTL.Milliseconds(),
		"x-max-length":           int64(queueMaxLength),
	}
}

func (t topology) retryQueueArgs(delay time.Duration, routingKey string) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    t.exchange,
		"x-dead-letter-routing-key": routingKey,
	}
}

// bindingKey maps the subscription wildcard to the broker wildcard.
func bindingKey(eventType string) string {
	if eventType == "*" {
		return "#"
	}
	return eventType
}

// retryDelay is 1000 * 2^(count-1) milliseconds.
func retryDelay(retryCount int) time.Duration {
	return time.Duration(1000*math.Pow(2, float64(retryCount-1))) * time.Millisecond
}

// reconnectDelay is 1000 * 2^attempts milliseconds, capped at 30 seconds.
func reconnectDelay(attempts int) time.Duration {
	delay := time.Duration(1000*math.Pow(2, float64(attempts))) * time.Millisecond
	if delay > 30*time.Second {
		return 30 * time.Second
	}
	return delay
}

// salvagerInterval adapts to traffic: a productive cycle polls again in one
// second, every empty cycle backs off geometrically up to the cap.
func salvagerInterval(emptyStreak int) time.Duration {
	if emptyStreak == 0 {
		return salvagerMinInterval
	}
	capped := emptyStreak
	if capped > 5 {
		capped = 5
	}
	interval := time.Duration(1000*math.Pow(1.5, float64(capped))) * time.Millisecond
	if interval > salvagerMaxInterval {
		return salvagerMaxInterval
	}
	return interval
}
