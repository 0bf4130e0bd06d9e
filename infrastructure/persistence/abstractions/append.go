package abstractions

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/domain/events"
	"bibliotek/pkg/errors"
)

// DefaultAppendAttempts bounds the optimistic-concurrency retry loop.
const DefaultAppendAttempts = 3

// AppendBatch saves a batch through the store, retrying CONCURRENCY_CONFLICT
// up to attempts times. Before each retry the current stream head is re-read
// and the batch is re-based on it; the store re-stamps the event versions.
// Non-concurrency errors propagate immediately.
func AppendBatch(ctx context.Context, store ports.EventStore, aggregateID string, batch []events.DomainEvent, expectedVersion int, logger *zap.Logger) ([]events.DomainEvent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 0; attempt < DefaultAppendAttempts; attempt++ {
		if attempt > 0 {
			delay := appendBackoff(attempt - 1)
			logger.Debug("retrying append after concurrency conflict",
				zap.String("aggregateId", aggregateID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

			head, err := store.GetEventsForAggregate(ctx, aggregateID)
			if err != nil {
				return nil, err
			}
			expectedVersion = 0
			if len(head) > 0 {
				expectedVersion = head[len(head)-1].Version
			}
		}

		saved, err := store.SaveEvents(ctx, aggregateID, batch, expectedVersion)
		if err == nil {
			return saved, nil
		}
		if !errors.IsConcurrencyConflict(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// appendBackoff returns 50 + rand(0, 100*2^attempt) milliseconds.
func appendBackoff(attempt int) time.Duration {
	jitter := rand.Int63n(int64(100 * (1 << attempt)))
	return time.Duration(50+jitter) * time.Millisecond
}
