package choreography

import (
	"context"

	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/application/projections"
	"bibliotek/domain/events"
	"bibliotek/pkg/errors"
)

// BookValidator is the books-service side of the choreography: it answers
// RESERVATION_BOOK_VALIDATION requests from the book read model.
type BookValidator struct {
	repo          ports.ProjectionRepository[projections.BookReadModel]
	bus           ports.EventBus
	includeDetail bool
	logger        *zap.Logger
}

// NewBookValidator creates the validator. includeDetail controls whether
// failure events carry the raw error chain; keep it off in production.
func NewBookValidator(repo ports.ProjectionRepository[projections.BookReadModel], bus ports.EventBus, includeDetail bool, logger *zap.Logger) *BookValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookValidator{repo: repo, bus: bus, includeDetail: includeDetail, logger: logger}
}

// Register binds the validator to validation requests.
func (v *BookValidator) Register(bus ports.EventBus) error {
	return bus.Subscribe(events.ReservationBookValidation, v.onValidationRequest)
}

func (v *BookValidator) onValidationRequest(ctx context.Context, event events.DomainEvent) error {
	bookID := event.PayloadString("bookId")
	reservationID := event.PayloadString("reservationId")
	if reservationID == "" {
		reservationID = event.AggregateID
	}

	book, err := v.repo.GetByID(ctx, bookID, ports.QueryOptions{IncludeDeleted: true})
	if err != nil {
		if !errors.IsNotFound(err) {
			// Infrastructure trouble: let the retry ladder have it.
			return err
		}
		v.logger.Warn("validation requested for unknown book",
			zap.String("bookId", bookID),
			zap.String("reservationId", reservationID))
		failed := events.NewFailedEvent(event, errors.NewNotFoundError(errors.CodeBookNotFound, "book"), v.includeDetail)
		return v.bus.Publish(ctx, failed)
	}

	isValid := book.DeletedAt == nil
	reason := ""
	if !isValid {
		reason = "book is no longer in the catalog"
	}

	result := events.NewDomainEvent(reservationID, events.BookValidationResult, 1, map[string]interface{}{
		"reservationId": reservationID,
		"bookId":        bookID,
		"isValid":       isValid,
		"reason":        reason,
		"retailPrice":   book.RetailPrice,
	})
	return v.bus.Publish(ctx, result.WithCorrelationID(event.CorrelationID()))
}
