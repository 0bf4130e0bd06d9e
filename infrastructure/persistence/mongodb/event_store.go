package mongodb

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/domain/events"
	"bibliotek/pkg/errors"
)

const (
	eventsCollection   = "events"
	countersCollection = "counters"
	globalCounterID    = "globalVersion"

	transientAttempts    = 4
	transientBaseBackoff = 100 * time.Millisecond
	transientMaxBackoff  = 2 * time.Second
)

// EventStore persists domain events in MongoDB with per-aggregate optimistic
// concurrency and a single global sequence counter. A circuit breaker guards
// the database so a struggling primary fails fast instead of piling up
// blocked writers.
type EventStore struct {
	events   *mongo.Collection
	counters *mongo.Collection
	upcaster *events.UpcasterRegistry
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewEventStore builds the store and ensures its indexes.
func NewEventStore(ctx context.Context, db *mongo.Database, upcaster *events.UpcasterRegistry, logger *zap.Logger) (*EventStore, error) {
	if upcaster == nil {
		upcaster = events.NewUpcasterRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store := &EventStore{
		events:   db.Collection(eventsCollection),
		counters: db.Collection(countersCollection),
		upcaster: upcaster,
		logger:   logger,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "mongo-event-store",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Duplicate keys are a caller-level conflict, not a sick database.
			IsSuccessful: func(err error) bool {
				return err == nil || mongo.IsDuplicateKeyError(err)
			},
		}),
	}

	if err := store.ensureIndexes(ctx); err != nil {
		return nil, errors.NewInfrastructureError(errors.CodeEventStoreUnavailable, "failed to create event store indexes", err)
	}
	return store, nil
}

func (s *EventStore) ensureIndexes(ctx context.Context) error {
	_, err := s.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "aggregateId", Value: 1}, {Key: "version", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "eventType", Value: 1}, {Key: "timestamp", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "globalVersion", Value: 1}},
		},
	})
	return err
}

// SaveEvents appends the batch with optimistic concurrency, assigning
// per-aggregate versions and a contiguous block of global versions.
func (s *EventStore) SaveEvents(ctx context.Context, aggregateID string, batch []events.DomainEvent, expectedVersion int) ([]events.DomainEvent, error) {
	if aggregateID == "" {
		return nil, errors.NewValidationError("aggregateId is required")
	}
	if len(batch) == 0 {
		return nil, errors.NewValidationError("events batch is empty")
	}

	currentVersion, err := s.currentVersion(ctx, aggregateID)
	if err != nil {
		return nil, err
	}
	if currentVersion != expectedVersion {
		return nil, errors.NewConcurrencyConflictError(aggregateID, expectedVersion, currentVersion)
	}

	highest, err := s.NextGlobalVersion(ctx, len(batch))
	if err != nil {
		return nil, err
	}
	start := highest - len(batch) + 1

	now := time.Now().UTC()
	stamped := make([]events.DomainEvent, len(batch))
	docs := make([]interface{}, len(batch))
	for i, event := range batch {
		event.AggregateID = aggregateID
		event.Version = expectedVersion + i + 1
		event.GlobalVersion = start + i
		if event.Timestamp.IsZero() {
			event.Timestamp = now
		}
		event.EnsureCorrelationID()
		meta := make(map[string]interface{}, len(event.Metadata)+1)
		for k, v := range event.Metadata {
			meta[k] = v
		}
		meta[events.MetaStored] = now
		event.Metadata = meta

		stamped[i] = event
		docs[i] = event
	}

	err = s.execute(ctx, func(ctx context.Context) error {
		_, err := s.events.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
		return err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errors.NewDuplicateEventError(aggregateID, stamped[0].Version)
		}
		return nil, errors.NewInfrastructureError(errors.CodeEventSaveFailed, "failed to persist event batch", err)
	}
	return stamped, nil
}

// GetEventsForAggregate returns the stream ordered by version, upcasting each
// event to its newest schema.
func (s *EventStore) GetEventsForAggregate(ctx context.Context, aggregateID string) ([]events.DomainEvent, error) {
	if aggregateID == "" {
		return nil, errors.NewValidationError("aggregateId is required")
	}

	var stream []events.DomainEvent
	err := s.execute(ctx, func(ctx context.Context) error {
		cursor, err := s.events.Find(ctx,
			bson.M{"aggregateId": aggregateID},
			options.Find().SetSort(bson.D{{Key: "version", Value: 1}}))
		if err != nil {
			return err
		}
		stream = stream[:0]
		return cursor.All(ctx, &stream)
	})
	if err != nil {
		return nil, errors.NewInfrastructureError(errors.CodeEventRetrievalFailed, "failed to read event stream", err)
	}
	return s.upcastAll(stream)
}

// GetEventsByType returns events of one type within [from, to), ordered by
// global version. Zero times leave that bound open.
func (s *EventStore) GetEventsByType(ctx context.Context, eventType string, from, to time.Time) ([]events.DomainEvent, error) {
	if eventType == "" {
		return nil, errors.NewValidationError("eventType is required")
	}

	filter := bson.M{"eventType": eventType}
	window := bson.M{}
	if !from.IsZero() {
		window["$gte"] = from
	}
	if !to.IsZero() {
		window["$lt"] = to
	}
	if len(window) > 0 {
		filter["timestamp"] = window
	}

	var stream []events.DomainEvent
	err := s.execute(ctx, func(ctx context.Context) error {
		cursor, err := s.events.Find(ctx, filter,
			options.Find().SetSort(bson.D{{Key: "globalVersion", Value: 1}}))
		if err != nil {
			return err
		}
		stream = stream[:0]
		return cursor.All(ctx, &stream)
	})
	if err != nil {
		return nil, errors.NewInfrastructureError(errors.CodeEventRetrievalFailed, "failed to read events by type", err)
	}
	return s.upcastAll(stream)
}

// NextGlobalVersion atomically reserves n global versions and returns the
// highest reserved.
func (s *EventStore) NextGlobalVersion(ctx context.Context, n int) (int, error) {
	if n < 1 {
		return 0, errors.NewValidationError("block size must be at least 1")
	}

	var counter struct {
		Seq int `bson:"seq"`
	}
	err := s.execute(ctx, func(ctx context.Context) error {
		return s.counters.FindOneAndUpdate(ctx,
			bson.M{"_id": globalCounterID},
			bson.M{"$inc": bson.M{"seq": n}},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&counter)
	})
	if err != nil {
		return 0, errors.NewInfrastructureError(errors.CodeEventStoreUnavailable, "failed to reserve global versions", err)
	}
	return counter.Seq, nil
}

// CheckHealth pings the database through the breaker.
func (s *EventStore) CheckHealth(ctx context.Context) ports.HealthStatus {
	err := s.execute(ctx, func(ctx context.Context) error {
		return s.events.Database().Client().Ping(ctx, nil)
	})
	if err != nil {
		return ports.HealthStatus{Status: ports.HealthDown, Details: map[string]interface{}{"reason": err.Error()}}
	}
	return ports.HealthStatus{Status: ports.HealthUp}
}

func (s *EventStore) currentVersion(ctx context.Context, aggregateID string) (int, error) {
	var head struct {
		Version int `bson:"version"`
	}
	err := s.execute(ctx, func(ctx context.Context) error {
		err := s.events.FindOne(ctx,
			bson.M{"aggregateId": aggregateID},
			options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}}).SetProjection(bson.M{"version": 1}),
		).Decode(&head)
		if err == mongo.ErrNoDocuments {
			head.Version = 0
			return nil
		}
		return err
	})
	if err != nil {
		return 0, errors.NewInfrastructureError(errors.CodeEventStoreUnavailable, "failed to read stream head", err)
	}
	return head.Version, nil
}

func (s *EventStore) upcastAll(stream []events.DomainEvent) ([]events.DomainEvent, error) {
	out := make([]events.DomainEvent, 0, len(stream))
	for _, event := range stream {
		upgraded, err := s.upcaster.Apply(event)
		if err != nil {
			return nil, errors.NewInfrastructureError(errors.CodeEventRetrievalFailed, "failed to upcast event", err)
		}
		out = append(out, upgraded)
	}
	return out, nil
}

// execute runs op through the circuit breaker, retrying transient failures
// with exponential backoff. Duplicate-key errors pass through untouched so
// callers can map them.
func (s *EventStore) execute(ctx context.Context, op func(context.Context) error) error {
	backoff := transientBaseBackoff
	var lastErr error
	for attempt := 0; attempt < transientAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if backoff > transientMaxBackoff {
				backoff = transientMaxBackoff
			}
		}

		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, op(ctx)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return err
		}
		s.logger.Warn("transient event store error",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return lastErr
}

// isTransient reports whether the error is worth retrying: timeouts, broken
// connections and replica-set primary step-downs.
func isTransient(err error) bool {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return false
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}
	var serverErr mongo.ServerError
	if stderrors.As(err, &serverErr) {
		return serverErr.HasErrorLabel("RetryableWriteError") || serverErr.HasErrorLabel("TransientTransactionError")
	}
	return false
}
