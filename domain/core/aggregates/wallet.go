package aggregates

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bibliotek/domain/events"
	"bibliotek/pkg/errors"
)

var walletValidator = validator.New()

// CreateWalletProps is the validated input for the Wallet factory.
type CreateWalletProps struct {
	UserID         string          `validate:"required"`
	InitialBalance decimal.Decimal `validate:"-"`
}

// Wallet holds a user's balance. Debits fail rather than going negative;
// the payment choreography turns that failure into a declined reservation.
type Wallet struct {
	AggregateRoot

	userID  string
	balance decimal.Decimal
}

// NewWallet validates the input and emits WALLET_CREATED at version 1.
func NewWallet(props CreateWalletProps) (*Wallet, error) {
	if err := walletValidator.Struct(props); err != nil {
		return nil, errors.NewValidationError("invalid wallet properties").WithCause(err)
	}
	if props.InitialBalance.IsNegative() {
		return nil, errors.NewValidationError("initial balance cannot be negative")
	}

	w := &Wallet{}
	w.id = uuid.New().String()
	event := w.record(events.WalletCreated, map[string]interface{}{
		"userId":  props.UserID,
		"balance": props.InitialBalance.String(),
	})
	w.apply(event)
	return w, nil
}

// RehydrateWallet reconstructs a wallet from its event stream.
func RehydrateWallet(history []events.DomainEvent, logger *zap.Logger) (*Wallet, error) {
	w := &Wallet{}
	if err := w.rehydrate(history, w.apply, logger); err != nil {
		return nil, err
	}
	return w, nil
}

// UserID returns the owning user id.
func (w *Wallet) UserID() string { return w.userID }

// Balance returns the current balance.
func (w *Wallet) Balance() decimal.Decimal { return w.balance }

// Credit adds funds and emits WALLET_CREDITED.
func (w *Wallet) Credit(amount decimal.Decimal, reason string) error {
	if !amount.IsPositive() {
		return errors.NewValidationError("credit amount must be positive")
	}
	w.apply(w.record(events.WalletCredited, map[string]interface{}{
		"amount":  amount.String(),
		"balance": w.balance.Add(amount).String(),
		"reason":  reason,
	}))
	return nil
}

// Debit removes funds and emits WALLET_DEBITED. Fails with
// INSUFFICIENT_FUNDS when the balance does not cover the amount.
func (w *Wallet) Debit(amount decimal.Decimal, reason string) error {
	if !amount.IsPositive() {
		return errors.NewValidationError("debit amount must be positive")
	}
	if w.balance.LessThan(amount) {
		return errors.NewInsufficientFundsError(w.id)
	}
	w.apply(w.record(events.WalletDebited, map[string]interface{}{
		"amount":  amount.String(),
		"balance": w.balance.Sub(amount).String(),
		"reason":  reason,
	}))
	return nil
}

func (w *Wallet) apply(event events.DomainEvent) bool {
	switch event.EventType {
	case events.WalletCreated:
		w.userID = event.PayloadString("userId")
		w.balance = payloadDecimal(event, "balance")
	case events.WalletCredited, events.WalletDebited:
		w.balance = payloadDecimal(event, "balance")
	default:
		return false
	}
	return true
}
