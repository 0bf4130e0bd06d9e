package aggregates

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliotek/domain/events"
	"bibliotek/pkg/errors"
)

func newTestReservation(t *testing.T) *Reservation {
	t.Helper()
	r, err := NewReservation(CreateReservationProps{
		BookID: "d0a4f798-7c82-4df4-9f2e-3a5b7c2d1e0f",
		UserID: "user-1",
	})
	require.NoError(t, err)
	return r
}

func confirmTestReservation(t *testing.T, r *Reservation, dueDate time.Time) {
	t.Helper()
	require.NoError(t, r.SetRetailPrice(decimal.NewFromInt(36)))
	require.NoError(t, r.MarkPendingPayment(decimal.NewFromInt(3)))
	require.NoError(t, r.Confirm(dueDate))
}

func TestNewReservation(t *testing.T) {
	r := newTestReservation(t)

	assert.Equal(t, ReservationStatusCreated, r.Status())
	assert.Equal(t, 1, r.Version())

	uncommitted := r.UncommittedEvents()
	require.Len(t, uncommitted, 1)
	assert.Equal(t, events.ReservationCreated, uncommitted[0].EventType)
	assert.Equal(t, 1, uncommitted[0].Version)
	assert.Equal(t, "user-1", uncommitted[0].PayloadString("userId"))
}

func TestNewReservationValidation(t *testing.T) {
	_, err := NewReservation(CreateReservationProps{BookID: "not-a-uuid", UserID: "user-1"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))

	_, err = NewReservation(CreateReservationProps{BookID: "d0a4f798-7c82-4df4-9f2e-3a5b7c2d1e0f"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}

func TestReservationHappyPath(t *testing.T) {
	r := newTestReservation(t)
	dueDate := time.Now().Add(5 * 24 * time.Hour)
	confirmTestReservation(t, r, dueDate)

	assert.Equal(t, ReservationStatusReserved, r.Status())
	assert.True(t, r.RetailPrice().Equal(decimal.NewFromInt(36)))
	assert.True(t, r.Fee().Equal(decimal.NewFromInt(3)))
	assert.Equal(t, 4, r.Version())
	assert.WithinDuration(t, dueDate, r.DueDate(), time.Second)
}

func TestReservationGuards(t *testing.T) {
	t.Run("cannot confirm before pending payment", func(t *testing.T) {
		r := newTestReservation(t)
		err := r.Confirm(time.Now())
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, "RESERVATION_CANNOT_BE_RESERVED"))
	})

	t.Run("cannot cancel before confirmation", func(t *testing.T) {
		r := newTestReservation(t)
		err := r.Cancel()
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, "RESERVATION_CANNOT_BE_CANCELLED"))
	})

	t.Run("cannot return twice", func(t *testing.T) {
		r := newTestReservation(t)
		confirmTestReservation(t, r, time.Now())
		require.NoError(t, r.MarkAsReturned(time.Now(), 0, decimal.Zero))

		err := r.MarkAsReturned(time.Now(), 0, decimal.Zero)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, "RESERVATION_CANNOT_BE_RETURNED"))
	})

	t.Run("cannot reject after confirmation", func(t *testing.T) {
		r := newTestReservation(t)
		confirmTestReservation(t, r, time.Now())

		err := r.Reject("book unavailable")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, "RESERVATION_CANNOT_BE_REJECTED"))
	})
}

func TestReservationReject(t *testing.T) {
	r := newTestReservation(t)
	require.NoError(t, r.Reject("book not found"))
	assert.Equal(t, ReservationStatusRejected, r.Status())
}

func TestLateFeeAt(t *testing.T) {
	feePerDay := decimal.RequireFromString("0.2")

	t.Run("on time", func(t *testing.T) {
		r := newTestReservation(t)
		confirmTestReservation(t, r, time.Now().Add(24*time.Hour))

		days, fee := r.LateFeeAt(time.Now(), feePerDay)
		assert.Equal(t, 0, days)
		assert.True(t, fee.IsZero())
	})

	t.Run("three days late", func(t *testing.T) {
		r := newTestReservation(t)
		confirmTestReservation(t, r, time.Now().Add(-3*24*time.Hour))

		days, fee := r.LateFeeAt(time.Now(), feePerDay)
		assert.Equal(t, 3, days)
		assert.Equal(t, "0.6", FormatFee(fee))
	})

	t.Run("fee reaches retail price", func(t *testing.T) {
		r := newTestReservation(t)
		require.NoError(t, r.SetRetailPrice(decimal.NewFromInt(27)))
		require.NoError(t, r.MarkPendingPayment(decimal.NewFromInt(3)))
		require.NoError(t, r.Confirm(time.Now().Add(-135*24*time.Hour)))

		days, fee := r.LateFeeAt(time.Now(), feePerDay)
		assert.Equal(t, 135, days)
		assert.True(t, fee.GreaterThanOrEqual(r.RetailPrice()))
	})
}

func TestMarkAsReturnedPayload(t *testing.T) {
	r := newTestReservation(t)
	confirmTestReservation(t, r, time.Now().Add(-3*24*time.Hour))
	r.ClearUncommittedEvents()

	returnedAt := time.Now()
	days, fee := r.LateFeeAt(returnedAt, decimal.RequireFromString("0.2"))
	require.NoError(t, r.MarkAsReturned(returnedAt, days, fee))

	uncommitted := r.UncommittedEvents()
	require.Len(t, uncommitted, 1)
	event := uncommitted[0]
	assert.Equal(t, events.ReservationReturned, event.EventType)
	assert.Equal(t, 3, event.PayloadInt("daysLate"))
	assert.Equal(t, "0.6", event.PayloadString("lateFeeApplied"))
	assert.Equal(t, ReservationStatusReturned, r.Status())
}

func TestMarkAsBrought(t *testing.T) {
	r := newTestReservation(t)
	require.NoError(t, r.SetRetailPrice(decimal.NewFromInt(27)))
	require.NoError(t, r.MarkPendingPayment(decimal.NewFromInt(3)))
	require.NoError(t, r.Confirm(time.Now().Add(-135*24*time.Hour)))

	returnedAt := time.Now()
	days, fee := r.LateFeeAt(returnedAt, decimal.RequireFromString("0.2"))
	require.True(t, fee.GreaterThanOrEqual(r.RetailPrice()))
	require.NoError(t, r.MarkAsBrought(returnedAt, days, fee))

	assert.Equal(t, ReservationStatusBought, r.Status())
	uncommitted := r.UncommittedEvents()
	last := uncommitted[len(uncommitted)-1]
	assert.Equal(t, BookBroughtMessage, last.PayloadString("message"))
}

func TestRehydrateReservation(t *testing.T) {
	r := newTestReservation(t)
	confirmTestReservation(t, r, time.Now().Add(5*24*time.Hour))

	rehydrated, err := RehydrateReservation(r.UncommittedEvents(), nil)
	require.NoError(t, err)

	assert.Equal(t, r.ID(), rehydrated.ID())
	assert.Equal(t, r.Version(), rehydrated.Version())
	assert.Equal(t, r.Status(), rehydrated.Status())
	assert.True(t, r.RetailPrice().Equal(rehydrated.RetailPrice()))
	assert.Empty(t, rehydrated.UncommittedEvents())
}

func TestRehydrateRejectsBadStream(t *testing.T) {
	t.Run("empty stream", func(t *testing.T) {
		_, err := RehydrateReservation(nil, nil)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeInvalidEventStream))
	})

	t.Run("first event not a creation", func(t *testing.T) {
		stream := []events.DomainEvent{
			events.NewDomainEvent("res-1", events.ReservationConfirmed, 1, nil),
		}
		_, err := RehydrateReservation(stream, nil)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeInvalidEventStream))
	})
}

func TestRehydrateIgnoresUnknownEvents(t *testing.T) {
	r := newTestReservation(t)
	stream := r.UncommittedEvents()
	stream = append(stream, events.NewDomainEvent(r.ID(), "RESERVATION_TAGGED", 2, map[string]interface{}{
		"tag": "summer-reading",
	}))

	rehydrated, err := RehydrateReservation(stream, nil)
	require.NoError(t, err)
	assert.Equal(t, ReservationStatusCreated, rehydrated.Status())
	assert.Equal(t, 2, rehydrated.Version())
}

func TestRehydrateSortsByVersion(t *testing.T) {
	r := newTestReservation(t)
	confirmTestReservation(t, r, time.Now().Add(5*24*time.Hour))

	stream := r.UncommittedEvents()
	// Deliver out of order, as a bus consumer might.
	stream[1], stream[3] = stream[3], stream[1]

	rehydrated, err := RehydrateReservation(stream, nil)
	require.NoError(t, err)
	assert.Equal(t, ReservationStatusReserved, rehydrated.Status())
	assert.Equal(t, 4, rehydrated.Version())
}

func TestFormatFee(t *testing.T) {
	assert.Equal(t, "0.0", FormatFee(decimal.Zero))
	assert.Equal(t, "0.6", FormatFee(decimal.RequireFromString("0.6")))
	assert.Equal(t, "27.0", FormatFee(decimal.NewFromInt(27)))
}
