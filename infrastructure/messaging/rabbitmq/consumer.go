package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/domain/events"
)

// consumeLoop processes deliveries until the channel closes, which happens
// on shutdown or when the connection drops and the reconnect path replaces
// the consumer.
func (b *EventBus) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for delivery := range deliveries {
		b.handleDelivery(ctx, delivery)
	}
}

func (b *EventBus) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	event, err := events.Unmarshal(delivery.Body)
	if err != nil {
		// Unparseable payloads can never succeed; straight to the DLX.
		b.logger.Error("dropping unparseable message",
			zap.String("messageId", delivery.MessageId),
			zap.Error(err))
		b.metrics.DeadLettered.Inc()
		delivery.Nack(false, false)
		return
	}

	event, err = b.upcaster.Apply(event)
	if err == nil {
		err = b.dispatch(ctx, event, delivery.RoutingKey)
	}
	if err == nil {
		b.metrics.Consumed.WithLabelValues("ack").Inc()
		delivery.Ack(false)
		return
	}

	b.logger.Warn("event handler failed",
		zap.String("eventType", event.EventType),
		zap.String("aggregateId", event.AggregateID),
		zap.Error(err))

	retryCount, withinBudget := nextRetry(delivery.Headers)
	if !withinBudget {
		b.metrics.Consumed.WithLabelValues("deadletter").Inc()
		b.metrics.DeadLettered.Inc()
		delivery.Nack(false, false)
		return
	}

	if err := b.scheduleRetry(ctx, delivery, retryCount, err.Error()); err != nil {
		b.logger.Error("failed to schedule retry, requeueing",
			zap.String("eventType", event.EventType),
			zap.Error(err))
		delivery.Nack(false, true)
		return
	}
	b.metrics.Consumed.WithLabelValues("retry").Inc()
	b.metrics.Retried.Inc()
	delivery.Ack(false)
}

// dispatch runs the specific handlers for the routing key followed by the
// wildcard handlers, sequentially. The first error aborts processing.
func (b *EventBus) dispatch(ctx context.Context, event events.DomainEvent, routingKey string) error {
	b.handlersMu.RLock()
	handlers := append([]ports.EventHandler{}, b.handlers[routingKey]...)
	if routingKey != event.EventType {
		handlers = append(handlers, b.handlers[event.EventType]...)
	}
	handlers = append(handlers, b.handlers[ports.WildcardEventType]...)
	b.handlersMu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// scheduleRetry parks the message in a per-attempt TTL queue that
// dead-letters back into the main exchange with the original routing key.
func (b *EventBus) scheduleRetry(ctx context.Context, delivery amqp.Delivery, retryCount int, reason string) error {
	b.mu.Lock()
	channel := b.channel
	initialized := b.initialized
	b.mu.Unlock()
	if !initialized || channel == nil {
		return amqp.ErrClosed
	}

	delay := retryDelay(retryCount)
	retryQueue := b.topo.retryQueue(retryCount)
	if _, err := channel.QueueDeclare(retryQueue, true, false, false, false,
		b.topo.retryQueueArgs(delay, delivery.RoutingKey)); err != nil {
		return err
	}

	headers := amqp.Table{}
	for k, v := range delivery.Headers {
		headers[k] = v
	}
	headers["x-retry-count"] = int32(retryCount)
	headers["x-last-retry-reason"] = reason

	return channel.PublishWithContext(ctx, "", retryQueue, false, false, amqp.Publishing{
		ContentType:  delivery.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    delivery.MessageId,
		Timestamp:    delivery.Timestamp,
		AppId:        delivery.AppId,
		Headers:      headers,
		Body:         delivery.Body,
	})
}

// nextRetry reads the delivery's retry count and returns the attempt number
// this failure becomes, plus whether the retry budget still covers it.
func nextRetry(headers amqp.Table) (int, bool) {
	count := headerInt(headers, "x-retry-count") + 1
	return count, count <= maxRetries
}

func headerInt(headers amqp.Table, key string) int {
	switch v := headers[key].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
