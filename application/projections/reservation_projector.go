package projections

import (
	"context"

	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/domain/events"
	"bibliotek/pkg/errors"
)

// ReservationProjector folds reservation events into the reservation read
// model.
type ReservationProjector struct {
	repo   ports.ProjectionRepository[ReservationReadModel]
	logger *zap.Logger
}

// NewReservationProjector creates the projector.
func NewReservationProjector(repo ports.ProjectionRepository[ReservationReadModel], logger *zap.Logger) *ReservationProjector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationProjector{repo: repo, logger: logger}
}

// Register binds the projector to its event types.
func (p *ReservationProjector) Register(bus ports.EventBus) error {
	for _, eventType := range []string{
		events.ReservationCreated,
		events.ReservationRetailPriceUpdated,
		events.ReservationPendingPayment,
		events.ReservationConfirmed,
		events.ReservationRejected,
		events.ReservationCancelled,
		events.ReservationBorrowed,
		events.ReservationLate,
		events.ReservationReturned,
		events.ReservationBookBrought,
	} {
		if err := bus.Subscribe(eventType, p.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle folds one event into the read model.
func (p *ReservationProjector) Handle(ctx context.Context, event events.DomainEvent) error {
	switch event.EventType {
	case events.ReservationCreated:
		return p.repo.Save(ctx, ReservationReadModel{
			ID:        event.AggregateID,
			BookID:    event.PayloadString("bookId"),
			UserID:    event.PayloadString("userId"),
			Status:    event.PayloadString("status"),
			Version:   event.Version,
			CreatedAt: event.Timestamp,
			UpdatedAt: event.Timestamp,
		})

	case events.ReservationRetailPriceUpdated:
		return p.applyVersioned(ctx, event, map[string]interface{}{
			"retailPrice": event.PayloadString("retailPrice"),
		})

	case events.ReservationPendingPayment:
		return p.applyVersioned(ctx, event, map[string]interface{}{
			"status": event.PayloadString("status"),
			"fee":    event.PayloadString("fee"),
		})

	case events.ReservationConfirmed:
		return p.applyVersioned(ctx, event, map[string]interface{}{
			"status":  event.PayloadString("status"),
			"dueDate": event.PayloadTime("dueDate"),
		})

	case events.ReservationRejected:
		return p.applyVersioned(ctx, event, map[string]interface{}{
			"status":         event.PayloadString("status"),
			"rejectedReason": event.PayloadString("reason"),
		})

	case events.ReservationCancelled, events.ReservationBorrowed:
		return p.applyVersioned(ctx, event, map[string]interface{}{
			"status": event.PayloadString("status"),
		})

	case events.ReservationLate:
		return p.applyVersioned(ctx, event, map[string]interface{}{
			"status":   event.PayloadString("status"),
			"daysLate": event.PayloadInt("daysLate"),
		})

	case events.ReservationReturned:
		return p.applyVersioned(ctx, event, map[string]interface{}{
			"status":         event.PayloadString("status"),
			"daysLate":       event.PayloadInt("daysLate"),
			"lateFeeApplied": event.PayloadString("lateFeeApplied"),
			"returnedAt":     event.PayloadTime("returnedAt"),
		})

	case events.ReservationBookBrought:
		return p.applyVersioned(ctx, event, map[string]interface{}{
			"status":         event.PayloadString("status"),
			"daysLate":       event.PayloadInt("daysLate"),
			"lateFeeApplied": event.PayloadString("lateFeeApplied"),
			"returnedAt":     event.PayloadTime("returnedAt"),
			"message":        event.PayloadString("message"),
		})

	default:
		p.logger.Debug("reservation projector ignoring event", zap.String("eventType", event.EventType))
		return nil
	}
}

func (p *ReservationProjector) applyVersioned(ctx context.Context, event events.DomainEvent, changes map[string]interface{}) error {
	matched, err := p.repo.UpdateIfNewer(ctx, event.AggregateID, changes, event.Version)
	if err != nil {
		return err
	}
	if !matched {
		return staleOrMissing(ctx, p.repo, event, errors.CodeReservationNotFound, p.logger)
	}
	return nil
}
