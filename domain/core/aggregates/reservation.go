package aggregates

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bibliotek/domain/events"
	"bibliotek/pkg/errors"
)

// ReservationStatus enumerates the reservation lifecycle states.
type ReservationStatus string

const (
	ReservationStatusCreated        ReservationStatus = "CREATED"
	ReservationStatusPendingPayment ReservationStatus = "PENDING_PAYMENT"
	ReservationStatusReserved       ReservationStatus = "RESERVED"
	ReservationStatusBorrowed       ReservationStatus = "BORROWED"
	ReservationStatusLate           ReservationStatus = "LATE"
	ReservationStatusReturned       ReservationStatus = "RETURNED"
	ReservationStatusCancelled      ReservationStatus = "CANCELLED"
	ReservationStatusRejected       ReservationStatus = "REJECTED"
	ReservationStatusBought         ReservationStatus = "BOUGHT"
)

// BookBroughtMessage is returned to the caller when accumulated late fees
// reach the book's retail price and the return is downgraded to a purchase.
const BookBroughtMessage = "Book considered brought due to high late fees."

var reservationValidator = validator.New()

// reservationTransitions lists the states each event may fire from. Any
// command fired outside its row fails with RESERVATION_CANNOT_BE_<TARGET>.
var reservationTransitions = map[string][]ReservationStatus{
	events.ReservationPendingPayment: {ReservationStatusCreated},
	events.ReservationConfirmed:      {ReservationStatusPendingPayment},
	events.ReservationRejected:       {ReservationStatusCreated, ReservationStatusPendingPayment},
	events.ReservationCancelled:      {ReservationStatusReserved, ReservationStatusBorrowed, ReservationStatusLate},
	events.ReservationReturned:       {ReservationStatusReserved, ReservationStatusBorrowed, ReservationStatusLate},
	events.ReservationBookBrought:    {ReservationStatusReserved, ReservationStatusBorrowed, ReservationStatusLate},
	events.ReservationBorrowed:       {ReservationStatusReserved},
	events.ReservationLate:           {ReservationStatusReserved, ReservationStatusBorrowed},
	events.ReservationRetailPriceUpdated: {
		ReservationStatusCreated, ReservationStatusPendingPayment,
		ReservationStatusReserved, ReservationStatusBorrowed,
	},
}

// CreateReservationProps is the validated input for the Reservation factory.
type CreateReservationProps struct {
	BookID string `validate:"required,uuid4"`
	UserID string `validate:"required"`
}

// Reservation tracks one user's hold on one book from creation through
// payment, borrowing and return. Cross-service steps (book validation,
// payment) are coordinated by choreography handlers; the aggregate only
// guards its own transitions.
type Reservation struct {
	AggregateRoot

	bookID      string
	userID      string
	status      ReservationStatus
	retailPrice decimal.Decimal
	fee         decimal.Decimal
	lateFee     decimal.Decimal
	daysLate    int
	dueDate     time.Time
	returnedAt  time.Time
}

// NewReservation validates the input and emits RESERVATION_CREATED at
// version 1 with status CREATED.
func NewReservation(props CreateReservationProps) (*Reservation, error) {
	if err := reservationValidator.Struct(props); err != nil {
		return nil, errors.NewValidationError("invalid reservation properties").WithCause(err)
	}

	r := &Reservation{}
	r.id = uuid.New().String()
	event := r.record(events.ReservationCreated, map[string]interface{}{
		"bookId": props.BookID,
		"userId": props.UserID,
		"status": string(ReservationStatusCreated),
	})
	r.apply(event)
	return r, nil
}

// RehydrateReservation reconstructs a reservation from its event stream.
func RehydrateReservation(history []events.DomainEvent, logger *zap.Logger) (*Reservation, error) {
	r := &Reservation{}
	if err := r.rehydrate(history, r.apply, logger); err != nil {
		return nil, err
	}
	return r, nil
}

// BookID returns the reserved book id.
func (r *Reservation) BookID() string { return r.bookID }

// UserID returns the reserving user id.
func (r *Reservation) UserID() string { return r.userID }

// Status returns the current lifecycle state.
func (r *Reservation) Status() ReservationStatus { return r.status }

// RetailPrice returns the price snapshot taken during validation.
func (r *Reservation) RetailPrice() decimal.Decimal { return r.retailPrice }

// Fee returns the reservation fee charged on payment.
func (r *Reservation) Fee() decimal.Decimal { return r.fee }

// LateFeeApplied returns the late fee recorded on return.
func (r *Reservation) LateFeeApplied() decimal.Decimal { return r.lateFee }

// DaysLate returns the days-late count recorded on return.
func (r *Reservation) DaysLate() int { return r.daysLate }

// DueDate returns the return due date, zero until confirmed.
func (r *Reservation) DueDate() time.Time { return r.dueDate }

func (r *Reservation) guard(eventType, target string) error {
	for _, allowed := range reservationTransitions[eventType] {
		if r.status == allowed {
			return nil
		}
	}
	return errors.NewStateTransitionError("RESERVATION", target, string(r.status))
}

// SetRetailPrice snapshots the book's retail price onto the reservation.
func (r *Reservation) SetRetailPrice(price decimal.Decimal) error {
	if err := r.guard(events.ReservationRetailPriceUpdated, "RETAIL_PRICE_UPDATED"); err != nil {
		return err
	}
	if price.IsNegative() {
		price = decimal.Zero
	}
	r.apply(r.record(events.ReservationRetailPriceUpdated, map[string]interface{}{
		"retailPrice": price.String(),
	}))
	return nil
}

// MarkPendingPayment moves the reservation to PENDING_PAYMENT with the fee
// the wallet will be debited for.
func (r *Reservation) MarkPendingPayment(fee decimal.Decimal) error {
	if err := r.guard(events.ReservationPendingPayment, string(ReservationStatusPendingPayment)); err != nil {
		return err
	}
	// The wallets service consumes this event, so it carries enough context
	// to charge without a cross-service lookup.
	r.apply(r.record(events.ReservationPendingPayment, map[string]interface{}{
		"status": string(ReservationStatusPendingPayment),
		"fee":    fee.String(),
		"userId": r.userID,
		"bookId": r.bookID,
	}))
	return nil
}

// Confirm moves the reservation to RESERVED once payment completed and fixes
// the return due date.
func (r *Reservation) Confirm(dueDate time.Time) error {
	if err := r.guard(events.ReservationConfirmed, string(ReservationStatusReserved)); err != nil {
		return err
	}
	r.apply(r.record(events.ReservationConfirmed, map[string]interface{}{
		"status":  string(ReservationStatusReserved),
		"dueDate": dueDate.UTC().Format(time.RFC3339Nano),
	}))
	return nil
}

// Reject terminates the reservation before it was ever confirmed.
func (r *Reservation) Reject(reason string) error {
	if err := r.guard(events.ReservationRejected, string(ReservationStatusRejected)); err != nil {
		return err
	}
	r.apply(r.record(events.ReservationRejected, map[string]interface{}{
		"status": string(ReservationStatusRejected),
		"reason": reason,
	}))
	return nil
}

// Cancel terminates an active reservation.
func (r *Reservation) Cancel() error {
	if err := r.guard(events.ReservationCancelled, string(ReservationStatusCancelled)); err != nil {
		return err
	}
	r.apply(r.record(events.ReservationCancelled, map[string]interface{}{
		"status": string(ReservationStatusCancelled),
	}))
	return nil
}

// MarkAsBorrowed records the physical pickup of the book.
func (r *Reservation) MarkAsBorrowed() error {
	if err := r.guard(events.ReservationBorrowed, string(ReservationStatusBorrowed)); err != nil {
		return err
	}
	r.apply(r.record(events.ReservationBorrowed, map[string]interface{}{
		"status": string(ReservationStatusBorrowed),
	}))
	return nil
}

// MarkAsLate flags a reservation whose due date has passed without return.
func (r *Reservation) MarkAsLate(daysLate int) error {
	if err := r.guard(events.ReservationLate, string(ReservationStatusLate)); err != nil {
		return err
	}
	r.apply(r.record(events.ReservationLate, map[string]interface{}{
		"status":   string(ReservationStatusLate),
		"daysLate": daysLate,
	}))
	return nil
}

// LateFeeAt computes the days-late count and accumulated late fee for a
// return happening at the given time. Pure; the decision whether the return
// becomes RETURNED or BOUGHT belongs to the choreography.
func (r *Reservation) LateFeeAt(now time.Time, feePerDay decimal.Decimal) (int, decimal.Decimal) {
	if r.dueDate.IsZero() || !now.After(r.dueDate) {
		return 0, decimal.Zero
	}
	daysLate := int(now.Sub(r.dueDate).Hours() / 24)
	if daysLate < 0 {
		daysLate = 0
	}
	return daysLate, feePerDay.Mul(decimal.NewFromInt(int64(daysLate)))
}

// MarkAsReturned records the return with the late fee computed by LateFeeAt.
func (r *Reservation) MarkAsReturned(returnedAt time.Time, daysLate int, lateFee decimal.Decimal) error {
	if err := r.guard(events.ReservationReturned, string(ReservationStatusReturned)); err != nil {
		return err
	}
	r.apply(r.record(events.ReservationReturned, map[string]interface{}{
		"status":         string(ReservationStatusReturned),
		"daysLate":       daysLate,
		"lateFeeApplied": FormatFee(lateFee),
		"returnedAt":     returnedAt.UTC().Format(time.RFC3339Nano),
	}))
	return nil
}

// MarkAsBrought closes the reservation as a purchase when the late fee
// reached the retail price.
func (r *Reservation) MarkAsBrought(returnedAt time.Time, daysLate int, lateFee decimal.Decimal) error {
	if err := r.guard(events.ReservationBookBrought, string(ReservationStatusBought)); err != nil {
		return err
	}
	r.apply(r.record(events.ReservationBookBrought, map[string]interface{}{
		"status":         string(ReservationStatusBought),
		"daysLate":       daysLate,
		"lateFeeApplied": FormatFee(lateFee),
		"returnedAt":     returnedAt.UTC().Format(time.RFC3339Nano),
		"message":        BookBroughtMessage,
	}))
	return nil
}

// FormatFee renders a fee with at least one decimal place, so an on-time
// return reads "0.0" rather than "0".
func FormatFee(fee decimal.Decimal) string {
	if fee.IsZero() {
		return "0.0"
	}
	if fee.Exponent() >= 0 {
		return fee.StringFixed(1)
	}
	return fee.String()
}

func (r *Reservation) apply(event events.DomainEvent) bool {
	switch event.EventType {
	case events.ReservationCreated:
		r.bookID = event.PayloadString("bookId")
		r.userID = event.PayloadString("userId")
		r.status = ReservationStatusCreated
	case events.ReservationRetailPriceUpdated:
		r.retailPrice = payloadDecimal(event, "retailPrice")
	case events.ReservationPendingPayment:
		r.status = ReservationStatusPendingPayment
		r.fee = payloadDecimal(event, "fee")
	case events.ReservationConfirmed:
		r.status = ReservationStatusReserved
		r.dueDate = event.PayloadTime("dueDate")
	case events.ReservationRejected:
		r.status = ReservationStatusRejected
	case events.ReservationCancelled:
		r.status = ReservationStatusCancelled
	case events.ReservationBorrowed:
		r.status = ReservationStatusBorrowed
	case events.ReservationLate:
		r.status = ReservationStatusLate
		r.daysLate = event.PayloadInt("daysLate")
	case events.ReservationReturned:
		r.status = ReservationStatusReturned
		r.daysLate = event.PayloadInt("daysLate")
		r.lateFee = payloadDecimal(event, "lateFeeApplied")
		r.returnedAt = event.PayloadTime("returnedAt")
	case events.ReservationBookBrought:
		r.status = ReservationStatusBought
		r.daysLate = event.PayloadInt("daysLate")
		r.lateFee = payloadDecimal(event, "lateFeeApplied")
		r.returnedAt = event.PayloadTime("returnedAt")
	default:
		return false
	}
	return true
}
