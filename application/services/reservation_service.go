package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/domain/config"
	"bibliotek/domain/core/aggregates"
	"bibliotek/pkg/errors"
)

// ReturnResult is what the caller of a return learns: the final status and
// the fee that was applied.
type ReturnResult struct {
	ReservationID  string `json:"reservationId"`
	Status         string `json:"status"`
	DaysLate       int    `json:"days_late"`
	LateFeeApplied string `json:"late_fee_applied"`
	Message        string `json:"message,omitempty"`
}

// ReservationService executes reservation commands and the reservation-side
// steps of the choreography.
type ReservationService struct {
	writer eventWriter
	domain *config.DomainConfig
	logger *zap.Logger
}

// NewReservationService creates the service.
func NewReservationService(store ports.EventStore, bus ports.EventBus, domain *config.DomainConfig, logger *zap.Logger) *ReservationService {
	if domain == nil {
		domain = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationService{
		writer: newEventWriter(store, bus, logger),
		domain: domain,
		logger: logger,
	}
}

// CreateReservation starts the reservation flow and returns the new id. The
// book is validated asynchronously; the reservation starts in CREATED.
func (s *ReservationService) CreateReservation(ctx context.Context, bookID, userID string) (string, error) {
	reservation, err := aggregates.NewReservation(aggregates.CreateReservationProps{
		BookID: bookID,
		UserID: userID,
	})
	if err != nil {
		return "", err
	}
	if _, err := s.writer.commit(ctx, reservation.ID(), reservation.UncommittedEvents(), ""); err != nil {
		return "", err
	}
	return reservation.ID(), nil
}

// ApplyBookValidation reacts to the books service's verdict: an invalid book
// rejects the reservation, a valid one snapshots the price and requests
// payment.
func (s *ReservationService) ApplyBookValidation(ctx context.Context, reservationID string, isValid bool, reason string, retailPrice decimal.Decimal, correlationID string) error {
	reservation, err := s.load(ctx, reservationID)
	if err != nil {
		return err
	}

	if !isValid {
		if err := reservation.Reject(reason); err != nil {
			return err
		}
		_, err = s.writer.commit(ctx, reservation.ID(), reservation.UncommittedEvents(), correlationID)
		return err
	}

	if err := reservation.SetRetailPrice(retailPrice); err != nil {
		return err
	}
	if err := reservation.MarkPendingPayment(s.domain.ReservationFee); err != nil {
		return err
	}
	_, err = s.writer.commit(ctx, reservation.ID(), reservation.UncommittedEvents(), correlationID)
	return err
}

// ApplyPaymentCompleted confirms the reservation and fixes the due date.
func (s *ReservationService) ApplyPaymentCompleted(ctx context.Context, reservationID, correlationID string) error {
	reservation, err := s.load(ctx, reservationID)
	if err != nil {
		return err
	}
	dueDate := time.Now().UTC().Add(time.Duration(s.domain.ReturnDueDateDays) * 24 * time.Hour)
	if err := reservation.Confirm(dueDate); err != nil {
		return err
	}
	_, err = s.writer.commit(ctx, reservation.ID(), reservation.UncommittedEvents(), correlationID)
	return err
}

// ApplyPaymentDeclined rejects the reservation with the wallet's reason.
func (s *ReservationService) ApplyPaymentDeclined(ctx context.Context, reservationID, reason, correlationID string) error {
	reservation, err := s.load(ctx, reservationID)
	if err != nil {
		return err
	}
	if err := reservation.Reject(reason); err != nil {
		return err
	}
	_, err = s.writer.commit(ctx, reservation.ID(), reservation.UncommittedEvents(), correlationID)
	return err
}

// CancelReservation cancels an active reservation.
func (s *ReservationService) CancelReservation(ctx context.Context, reservationID string) error {
	reservation, err := s.load(ctx, reservationID)
	if err != nil {
		return err
	}
	if err := reservation.Cancel(); err != nil {
		return err
	}
	_, err = s.writer.commit(ctx, reservation.ID(), reservation.UncommittedEvents(), "")
	return err
}

// BorrowReservation records the physical pickup.
func (s *ReservationService) BorrowReservation(ctx context.Context, reservationID string) error {
	reservation, err := s.load(ctx, reservationID)
	if err != nil {
		return err
	}
	if err := reservation.MarkAsBorrowed(); err != nil {
		return err
	}
	_, err = s.writer.commit(ctx, reservation.ID(), reservation.UncommittedEvents(), "")
	return err
}

// MarkReservationLate flags an overdue reservation, recording how late it is.
func (s *ReservationService) MarkReservationLate(ctx context.Context, reservationID string) error {
	reservation, err := s.load(ctx, reservationID)
	if err != nil {
		return err
	}
	daysLate, _ := reservation.LateFeeAt(time.Now().UTC(), s.domain.LateFeePerDay)
	if err := reservation.MarkAsLate(daysLate); err != nil {
		return err
	}
	_, err = s.writer.commit(ctx, reservation.ID(), reservation.UncommittedEvents(), "")
	return err
}

// ReturnReservation closes the loan. When the accumulated late fee reaches
// the book's retail price the return is downgraded to a purchase.
func (s *ReservationService) ReturnReservation(ctx context.Context, reservationID string) (*ReturnResult, error) {
	reservation, err := s.load(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	daysLate, lateFee := reservation.LateFeeAt(now, s.domain.LateFeePerDay)
	retailPrice := reservation.RetailPrice()

	bought := retailPrice.IsPositive() && lateFee.GreaterThanOrEqual(retailPrice)
	if bought {
		err = reservation.MarkAsBrought(now, daysLate, lateFee)
	} else {
		err = reservation.MarkAsReturned(now, daysLate, lateFee)
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.writer.commit(ctx, reservation.ID(), reservation.UncommittedEvents(), ""); err != nil {
		return nil, err
	}

	result := &ReturnResult{
		ReservationID:  reservation.ID(),
		Status:         string(reservation.Status()),
		DaysLate:       daysLate,
		LateFeeApplied: aggregates.FormatFee(lateFee),
	}
	if bought {
		result.Message = aggregates.BookBroughtMessage
	}
	return result, nil
}

func (s *ReservationService) load(ctx context.Context, id string) (*aggregates.Reservation, error) {
	stream, err := s.writer.store.GetEventsForAggregate(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(stream) == 0 {
		return nil, errors.NewNotFoundError(errors.CodeReservationNotFound, "reservation")
	}
	return aggregates.RehydrateReservation(stream, s.logger)
}
