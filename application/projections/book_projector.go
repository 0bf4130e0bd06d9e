package projections

import (
	"context"

	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/domain/events"
	"bibliotek/pkg/errors"
)

// BookProjector folds book events into the book read model. Handlers are
// idempotent through the repository version fence, so bus redeliveries and
// replays are harmless.
type BookProjector struct {
	repo   ports.ProjectionRepository[BookReadModel]
	logger *zap.Logger
}

// NewBookProjector creates the projector.
func NewBookProjector(repo ports.ProjectionRepository[BookReadModel], logger *zap.Logger) *BookProjector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookProjector{repo: repo, logger: logger}
}

// Register binds the projector to its event types.
func (p *BookProjector) Register(bus ports.EventBus) error {
	for _, eventType := range []string{
		events.BookCreated,
		events.BookUpdated,
		events.BookRetailPriceUpdated,
		events.BookDeleted,
	} {
		if err := bus.Subscribe(eventType, p.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle folds one event into the read model.
func (p *BookProjector) Handle(ctx context.Context, event events.DomainEvent) error {
	switch event.EventType {
	case events.BookCreated:
		return p.repo.Save(ctx, BookReadModel{
			ID:          event.AggregateID,
			Title:       event.PayloadString("title"),
			Author:      event.PayloadString("author"),
			ISBN:        event.PayloadString("isbn"),
			Description: event.PayloadString("description"),
			RetailPrice: event.PayloadString("retailPrice"),
			Version:     event.Version,
			CreatedAt:   event.Timestamp,
			UpdatedAt:   event.Timestamp,
		})

	case events.BookUpdated:
		changes := map[string]interface{}{}
		for _, field := range []string{"title", "author", "description"} {
			if v, ok := event.Payload[field]; ok {
				changes[field] = v
			}
		}
		return p.applyVersioned(ctx, event, changes)

	case events.BookRetailPriceUpdated:
		return p.applyVersioned(ctx, event, map[string]interface{}{
			"retailPrice": event.PayloadString("retailPrice"),
		})

	case events.BookDeleted:
		deletedAt := event.PayloadTime("deletedAt")
		if deletedAt.IsZero() {
			deletedAt = event.Timestamp
		}
		if err := p.repo.MarkDeleted(ctx, event.AggregateID, event.Version, deletedAt); err != nil {
			return err
		}
		return nil

	default:
		p.logger.Debug("book projector ignoring event", zap.String("eventType", event.EventType))
		return nil
	}
}

func (p *BookProjector) applyVersioned(ctx context.Context, event events.DomainEvent, changes map[string]interface{}) error {
	matched, err := p.repo.UpdateIfNewer(ctx, event.AggregateID, changes, event.Version)
	if err != nil {
		return err
	}
	if !matched {
		return staleOrMissing(ctx, p.repo, event, errors.CodeBookNotFound, p.logger)
	}
	return nil
}

// staleOrMissing disambiguates a no-match versioned update: a stale replay is
// logged and dropped, a genuinely missing document surfaces as not-found so
// the consumer retries and eventually dead-letters.
func staleOrMissing[T ports.Projection](ctx context.Context, repo ports.ProjectionRepository[T], event events.DomainEvent, notFoundCode string, logger *zap.Logger) error {
	_, err := repo.GetByID(ctx, event.AggregateID, ports.QueryOptions{IncludeDeleted: true})
	if err != nil {
		if errors.IsNotFound(err) {
			return errors.NewNotFoundError(notFoundCode, "projection for "+event.AggregateID)
		}
		return err
	}
	logger.Debug("dropping stale projection update",
		zap.String("aggregateId", event.AggregateID),
		zap.String("eventType", event.EventType),
		zap.Int("version", event.Version))
	return nil
}
