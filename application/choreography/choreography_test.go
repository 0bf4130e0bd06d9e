package choreography

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliotek/application/ports"
	"bibliotek/application/projections"
	"bibliotek/application/services"
	"bibliotek/domain/config"
	"bibliotek/domain/core/aggregates"
	membus "bibliotek/infrastructure/messaging/memory"
	"bibliotek/infrastructure/persistence/memory"
	"bibliotek/pkg/errors"
)

// fixture wires the three services onto one synchronous bus, each with its
// own event store, the way they run against the broker.
type fixture struct {
	ctx    context.Context
	domain *config.DomainConfig

	books        *services.BookService
	reservations *services.ReservationService
	wallets      *services.WalletService

	bookRepo        ports.ProjectionRepository[projections.BookReadModel]
	reservationRepo ports.ProjectionRepository[projections.ReservationReadModel]
	walletRepo      ports.ProjectionRepository[projections.WalletReadModel]
}

func newFixture(t *testing.T, domain *config.DomainConfig) *fixture {
	t.Helper()
	if domain == nil {
		domain = config.DefaultDomainConfig()
	}

	bus := membus.NewEventBus(nil)

	bookStore := memory.NewEventStore(nil)
	reservationStore := memory.NewEventStore(nil)
	walletStore := memory.NewEventStore(nil)

	bookRepo := memory.NewProjectionRepository[projections.BookReadModel](errors.CodeBookNotFound, "book")
	reservationRepo := memory.NewProjectionRepository[projections.ReservationReadModel](errors.CodeReservationNotFound, "reservation")
	walletRepo := memory.NewProjectionRepository[projections.WalletReadModel](errors.CodeWalletNotFound, "wallet")

	require.NoError(t, projections.NewBookProjector(bookRepo, nil).Register(bus))
	require.NoError(t, projections.NewReservationProjector(reservationRepo, nil).Register(bus))
	require.NoError(t, projections.NewWalletProjector(walletRepo, nil).Register(bus))

	f := &fixture{
		ctx:             context.Background(),
		domain:          domain,
		books:           services.NewBookService(bookStore, bus, nil),
		reservations:    services.NewReservationService(reservationStore, bus, domain, nil),
		wallets:         services.NewWalletService(walletStore, bus, walletRepo, nil),
		bookRepo:        bookRepo,
		reservationRepo: reservationRepo,
		walletRepo:      walletRepo,
	}

	require.NoError(t, NewBookValidator(bookRepo, bus, true, nil).Register(bus))
	require.NoError(t, NewReservationFlow(f.reservations, reservationRepo, bus, domain, nil).Register(bus))
	require.NoError(t, NewPaymentProcessor(f.wallets, bus, nil).Register(bus))

	return f
}

func bookProps(price string) aggregates.CreateBookProps {
	return aggregates.CreateBookProps{
		Title:       "Dune",
		Author:      "Frank Herbert",
		ISBN:        "9780441172719",
		RetailPrice: decimal.RequireFromString(price),
	}
}

func (f *fixture) createBook(t *testing.T, price string) string {
	t.Helper()
	id, err := f.books.CreateBook(f.ctx, bookProps(price))
	require.NoError(t, err)
	return id
}

func (f *fixture) reservation(t *testing.T, id string) projections.ReservationReadModel {
	t.Helper()
	doc, err := f.reservationRepo.GetByID(f.ctx, id, ports.QueryOptions{})
	require.NoError(t, err)
	return doc
}

func (f *fixture) wallet(t *testing.T, id string) projections.WalletReadModel {
	t.Helper()
	doc, err := f.walletRepo.GetByID(f.ctx, id, ports.QueryOptions{})
	require.NoError(t, err)
	return doc
}

func TestReservationHappyPath(t *testing.T) {
	f := newFixture(t, nil)

	bookID := f.createBook(t, "25")
	walletID, err := f.wallets.CreateWallet(f.ctx, "user-1", decimal.NewFromInt(10))
	require.NoError(t, err)

	reservationID, err := f.reservations.CreateReservation(f.ctx, bookID, "user-1")
	require.NoError(t, err)

	reservation := f.reservation(t, reservationID)
	assert.Equal(t, "RESERVED", reservation.Status)
	assert.Equal(t, "25", reservation.RetailPrice)
	assert.Equal(t, "3", reservation.Fee)
	require.NotNil(t, reservation.DueDate)

	// 10 - 3 fee
	assert.Equal(t, "7", f.wallet(t, walletID).Balance)
}

func TestReservationRejectedForUnknownBook(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.wallets.CreateWallet(f.ctx, "user-1", decimal.NewFromInt(10))
	require.NoError(t, err)

	reservationID, err := f.reservations.CreateReservation(f.ctx, "7f8de1a3-9b65-4f3a-8a49-1f2d3c4b5a69", "user-1")
	require.NoError(t, err)

	reservation := f.reservation(t, reservationID)
	assert.Equal(t, "REJECTED", reservation.Status)
	assert.Equal(t, errors.CodeBookNotFound, reservation.RejectedReason)
}

func TestReservationRejectedForDeletedBook(t *testing.T) {
	f := newFixture(t, nil)

	bookID := f.createBook(t, "25")
	require.NoError(t, f.books.DeleteBook(f.ctx, bookID))
	_, err := f.wallets.CreateWallet(f.ctx, "user-1", decimal.NewFromInt(10))
	require.NoError(t, err)

	reservationID, err := f.reservations.CreateReservation(f.ctx, bookID, "user-1")
	require.NoError(t, err)

	reservation := f.reservation(t, reservationID)
	assert.Equal(t, "REJECTED", reservation.Status)
	assert.Equal(t, "book is no longer in the catalog", reservation.RejectedReason)
}

func TestReservationRejectedForInsufficientFunds(t *testing.T) {
	f := newFixture(t, nil)

	bookID := f.createBook(t, "25")
	walletID, err := f.wallets.CreateWallet(f.ctx, "user-1", decimal.NewFromInt(1))
	require.NoError(t, err)

	reservationID, err := f.reservations.CreateReservation(f.ctx, bookID, "user-1")
	require.NoError(t, err)

	reservation := f.reservation(t, reservationID)
	assert.Equal(t, "REJECTED", reservation.Status)
	assert.Equal(t, errors.CodeInsufficientFunds, reservation.RejectedReason)

	// The failed charge must not touch the balance.
	assert.Equal(t, "1", f.wallet(t, walletID).Balance)
}

func TestReservationRejectedForMissingWallet(t *testing.T) {
	f := newFixture(t, nil)

	bookID := f.createBook(t, "25")
	reservationID, err := f.reservations.CreateReservation(f.ctx, bookID, "user-1")
	require.NoError(t, err)

	reservation := f.reservation(t, reservationID)
	assert.Equal(t, "REJECTED", reservation.Status)
	assert.Equal(t, errors.CodeWalletNotFound, reservation.RejectedReason)
}

func TestReservationRejectedOverUserLimit(t *testing.T) {
	domain := config.DefaultDomainConfig()
	domain.MaxActiveReservations = 1
	f := newFixture(t, domain)

	bookID := f.createBook(t, "25")
	_, err := f.wallets.CreateWallet(f.ctx, "user-1", decimal.NewFromInt(100))
	require.NoError(t, err)

	first, err := f.reservations.CreateReservation(f.ctx, bookID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "RESERVED", f.reservation(t, first).Status)

	second, err := f.reservations.CreateReservation(f.ctx, bookID, "user-1")
	require.NoError(t, err)

	reservation := f.reservation(t, second)
	assert.Equal(t, "REJECTED", reservation.Status)
	assert.Equal(t, ReservationBookLimitReason, reservation.RejectedReason)
}

func TestLateReturnAppliesFee(t *testing.T) {
	domain := config.DefaultDomainConfig()
	// Due date lands three days in the past, so the return is 3 days late.
	domain.ReturnDueDateDays = -3
	f := newFixture(t, domain)

	bookID := f.createBook(t, "25")
	_, err := f.wallets.CreateWallet(f.ctx, "user-1", decimal.NewFromInt(10))
	require.NoError(t, err)

	reservationID, err := f.reservations.CreateReservation(f.ctx, bookID, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.reservations.BorrowReservation(f.ctx, reservationID))

	result, err := f.reservations.ReturnReservation(f.ctx, reservationID)
	require.NoError(t, err)
	assert.Equal(t, "RETURNED", result.Status)
	assert.Equal(t, 3, result.DaysLate)
	assert.Equal(t, "0.6", result.LateFeeApplied)
	assert.Empty(t, result.Message)

	reservation := f.reservation(t, reservationID)
	assert.Equal(t, "RETURNED", reservation.Status)
	assert.Equal(t, 3, reservation.DaysLate)
	assert.Equal(t, "0.6", reservation.LateFeeApplied)
}

func TestOnTimeReturn(t *testing.T) {
	f := newFixture(t, nil)

	bookID := f.createBook(t, "25")
	_, err := f.wallets.CreateWallet(f.ctx, "user-1", decimal.NewFromInt(10))
	require.NoError(t, err)

	reservationID, err := f.reservations.CreateReservation(f.ctx, bookID, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.reservations.BorrowReservation(f.ctx, reservationID))

	result, err := f.reservations.ReturnReservation(f.ctx, reservationID)
	require.NoError(t, err)
	assert.Equal(t, "RETURNED", result.Status)
	assert.Equal(t, 0, result.DaysLate)
	assert.Equal(t, "0.0", result.LateFeeApplied)
}

func TestLateFeeReachingPriceBuysTheBook(t *testing.T) {
	domain := config.DefaultDomainConfig()
	domain.ReturnDueDateDays = -3 // fee 0.6 >= price 0.5
	f := newFixture(t, domain)

	bookID := f.createBook(t, "0.5")
	_, err := f.wallets.CreateWallet(f.ctx, "user-1", decimal.NewFromInt(10))
	require.NoError(t, err)

	reservationID, err := f.reservations.CreateReservation(f.ctx, bookID, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.reservations.BorrowReservation(f.ctx, reservationID))

	result, err := f.reservations.ReturnReservation(f.ctx, reservationID)
	require.NoError(t, err)
	assert.Equal(t, "BOUGHT", result.Status)
	assert.Equal(t, "Book considered brought due to high late fees.", result.Message)

	reservation := f.reservation(t, reservationID)
	assert.Equal(t, "BOUGHT", reservation.Status)
	assert.Equal(t, "Book considered brought due to high late fees.", reservation.Message)
}

func TestCancelAfterReserved(t *testing.T) {
	f := newFixture(t, nil)

	bookID := f.createBook(t, "25")
	_, err := f.wallets.CreateWallet(f.ctx, "user-1", decimal.NewFromInt(10))
	require.NoError(t, err)

	reservationID, err := f.reservations.CreateReservation(f.ctx, bookID, "user-1")
	require.NoError(t, err)

	require.NoError(t, f.reservations.CancelReservation(f.ctx, reservationID))
	assert.Equal(t, "CANCELLED", f.reservation(t, reservationID).Status)

	// Terminal: borrowing a cancelled reservation must fail.
	err = f.reservations.BorrowReservation(f.ctx, reservationID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "RESERVATION_CANNOT_BE_BORROWED"))
}
