package choreography

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/application/projections"
	"bibliotek/application/services"
	"bibliotek/domain/config"
	"bibliotek/domain/events"
	"bibliotek/pkg/common"
)

// ReservationBookLimitReason marks a rejection caused by the per-user limit
// on simultaneously active reservations.
const ReservationBookLimitReason = "RESERVATION_BOOK_LIMIT_REACH"

// activeStatuses are the states counting against the reservation limit.
var activeStatuses = map[string]bool{
	"CREATED":         true,
	"PENDING_PAYMENT": true,
	"RESERVED":        true,
	"BORROWED":        true,
	"LATE":            true,
}

// ReservationFlow is the reservations-service side of the choreography: it
// turns a created reservation into a validation request and folds the
// validation and payment verdicts back into the aggregate.
type ReservationFlow struct {
	service *services.ReservationService
	repo    ports.ProjectionRepository[projections.ReservationReadModel]
	bus     ports.EventBus
	domain  *config.DomainConfig
	logger  *zap.Logger
}

// NewReservationFlow creates the flow.
func NewReservationFlow(service *services.ReservationService, repo ports.ProjectionRepository[projections.ReservationReadModel], bus ports.EventBus, domain *config.DomainConfig, logger *zap.Logger) *ReservationFlow {
	if domain == nil {
		domain = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationFlow{service: service, repo: repo, bus: bus, domain: domain, logger: logger}
}

// Register binds the flow to its event types.
func (f *ReservationFlow) Register(bus ports.EventBus) error {
	subscriptions := map[string]ports.EventHandler{
		events.ReservationCreated:                             f.onCreated,
		events.BookValidationResult:                           f.onValidationResult,
		events.ReservationBookValidation + events.FailedSuffix: f.onValidationFailed,
		events.ReservationPaymentCompleted:                    f.onPaymentCompleted,
		events.ReservationPaymentDeclined:                     f.onPaymentDeclined,
	}
	for eventType, handler := range subscriptions {
		if err := bus.Subscribe(eventType, handler); err != nil {
			return err
		}
	}
	return nil
}

// onCreated enforces the per-user reservation limit, then asks the books
// service to validate the book.
func (f *ReservationFlow) onCreated(ctx context.Context, event events.DomainEvent) error {
	userID := event.PayloadString("userId")

	overLimit, err := f.userOverLimit(ctx, userID, event.AggregateID)
	if err != nil {
		return err
	}
	if overLimit {
		f.logger.Info("rejecting reservation over user limit",
			zap.String("reservationId", event.AggregateID),
			zap.String("userId", userID))
		return f.service.ApplyBookValidation(ctx, event.AggregateID, false, ReservationBookLimitReason, decimal.Zero, event.CorrelationID())
	}

	request := events.NewDomainEvent(event.AggregateID, events.ReservationBookValidation, 1, map[string]interface{}{
		"reservationId": event.AggregateID,
		"bookId":        event.PayloadString("bookId"),
		"userId":        userID,
	})
	return f.bus.Publish(ctx, request.WithCorrelationID(event.CorrelationID()))
}

func (f *ReservationFlow) onValidationResult(ctx context.Context, event events.DomainEvent) error {
	retailPrice, err := decimal.NewFromString(event.PayloadString("retailPrice"))
	if err != nil {
		retailPrice = decimal.NewFromFloat(event.PayloadFloat("retailPrice"))
	}
	if retailPrice.IsNegative() {
		retailPrice = decimal.Zero
	}
	return f.service.ApplyBookValidation(ctx,
		event.AggregateID,
		event.PayloadBool("isValid"),
		event.PayloadString("reason"),
		retailPrice,
		event.CorrelationID())
}

// onValidationFailed treats a failed validation hop as an invalid book.
func (f *ReservationFlow) onValidationFailed(ctx context.Context, event events.DomainEvent) error {
	reason := "book validation failed"
	if descriptor, ok := event.Payload[events.FailedError].(map[string]interface{}); ok {
		if code, ok := descriptor["code"].(string); ok && code != "" {
			reason = code
		}
	}
	return f.service.ApplyBookValidation(ctx, event.AggregateID, false, reason, decimal.Zero, event.CorrelationID())
}

func (f *ReservationFlow) onPaymentCompleted(ctx context.Context, event events.DomainEvent) error {
	return f.service.ApplyPaymentCompleted(ctx, event.AggregateID, event.CorrelationID())
}

func (f *ReservationFlow) onPaymentDeclined(ctx context.Context, event events.DomainEvent) error {
	reason := event.PayloadString("reason")
	if reason == "" {
		reason = "payment declined"
	}
	return f.service.ApplyPaymentDeclined(ctx, event.AggregateID, reason, event.CorrelationID())
}

func (f *ReservationFlow) userOverLimit(ctx context.Context, userID, excludeID string) (bool, error) {
	if f.repo == nil || f.domain.MaxActiveReservations <= 0 {
		return false, nil
	}
	page, _, err := f.repo.GetAll(ctx,
		map[string]interface{}{"userId": userID},
		common.PaginationParams{Page: 1, Limit: 100},
		ports.QueryOptions{FieldMask: []string{"userId", "status"}})
	if err != nil {
		return false, err
	}
	active := 0
	for _, reservation := range page {
		if reservation.ID != excludeID && activeStatuses[reservation.Status] {
			active++
		}
	}
	return active >= f.domain.MaxActiveReservations, nil
}
