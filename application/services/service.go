package services

import (
	"context"

	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/domain/events"
	"bibliotek/infrastructure/persistence/abstractions"
)

// eventWriter is the shared append-then-publish path behind every command.
// Events are durable once appended; a publish failure is logged and left for
// replay rather than rolled back.
type eventWriter struct {
	store  ports.EventStore
	bus    ports.EventBus
	logger *zap.Logger
}

func newEventWriter(store ports.EventStore, bus ports.EventBus, logger *zap.Logger) eventWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return eventWriter{store: store, bus: bus, logger: logger}
}

func (w eventWriter) commit(ctx context.Context, aggregateID string, uncommitted []events.DomainEvent, correlationID string) ([]events.DomainEvent, error) {
	if len(uncommitted) == 0 {
		return nil, nil
	}

	batch := make([]events.DomainEvent, len(uncommitted))
	for i, event := range uncommitted {
		if correlationID != "" {
			event = event.WithCorrelationID(correlationID)
		}
		batch[i] = event
	}

	expectedVersion := batch[0].Version - 1
	saved, err := abstractions.AppendBatch(ctx, w.store, aggregateID, batch, expectedVersion, w.logger)
	if err != nil {
		return nil, err
	}

	for _, event := range saved {
		if err := w.bus.Publish(ctx, event); err != nil {
			w.logger.Error("stored event could not be published",
				zap.String("aggregateId", event.AggregateID),
				zap.String("eventType", event.EventType),
				zap.Int("version", event.Version),
				zap.Error(err))
		}
	}
	return saved, nil
}
