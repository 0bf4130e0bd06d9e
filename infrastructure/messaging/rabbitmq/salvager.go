package rabbitmq

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"bibliotek/domain/events"
)

// salvager drains the unroutable queue in the background. Messages land
// there when a mandatory publish finds no binding, typically during rolling
// deploys when a consumer has not bound its keys yet. Each cycle pulls a
// bounded batch and re-publishes to the main exchange.
type salvager struct {
	bus             *EventBus
	running         atomic.Bool
	cycleInProgress atomic.Bool
	emptyStreak     int
}

func newSalvager(bus *EventBus) *salvager {
	return &salvager{bus: bus}
}

func (s *salvager) run(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)

	interval := salvagerMinInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if s.bus.isShuttingDown() {
			return
		}
		processed := s.cycle(ctx)
		if processed > 0 {
			s.emptyStreak = 0
		} else {
			s.emptyStreak++
		}
		interval = salvagerInterval(s.emptyStreak)
		timer.Reset(interval)
	}
}

// cycle pulls up to salvagerBatchSize messages with explicit acks and
// re-publishes each by its event type. Overlapping cycles are skipped.
func (s *salvager) cycle(ctx context.Context) int {
	if !s.cycleInProgress.CompareAndSwap(false, true) {
		return 0
	}
	defer s.cycleInProgress.Store(false)

	channel := s.bus.currentChannel()
	if channel == nil {
		return 0
	}

	processed := 0
	for processed < salvagerBatchSize {
		delivery, ok, err := channel.Get(s.bus.topo.unroutableQueue, false)
		if err != nil {
			s.bus.logger.Warn("salvager failed to pull message", zap.Error(err))
			return processed
		}
		if !ok {
			return processed
		}

		if err := s.salvage(ctx, channel, delivery); err != nil {
			s.bus.logger.Warn("salvager failed to re-publish message",
				zap.String("messageId", delivery.MessageId),
				zap.Error(err))
			// Unparseable messages are dropped, everything else requeued.
			delivery.Nack(false, !stderrors.Is(err, errUnparseable))
			return processed
		}
		delivery.Ack(false)
		processed++
		s.bus.metrics.Salvaged.Inc()
	}
	return processed
}

var errUnparseable = stderrors.New("unparseable message body")

func (s *salvager) salvage(ctx context.Context, channel *amqp.Channel, delivery amqp.Delivery) error {
	event, err := events.Unmarshal(delivery.Body)
	if err != nil || event.EventType == "" {
		return errUnparseable
	}

	headers := amqp.Table{}
	for k, v := range delivery.Headers {
		headers[k] = v
	}
	headers["x-retry-count"] = int32(headerInt(delivery.Headers, "x-retry-count") + 1)

	return channel.PublishWithContext(ctx, s.bus.topo.exchange, event.EventType, false, false, amqp.Publishing{
		ContentType:  delivery.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    delivery.MessageId,
		Timestamp:    delivery.Timestamp,
		AppId:        delivery.AppId,
		Headers:      headers,
		Body:         delivery.Body,
	})
}
