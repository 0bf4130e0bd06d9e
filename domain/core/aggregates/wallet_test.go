package aggregates

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliotek/pkg/errors"
)

func newTestWallet(t *testing.T, balance int64) *Wallet {
	t.Helper()
	w, err := NewWallet(CreateWalletProps{
		UserID:         "user-1",
		InitialBalance: decimal.NewFromInt(balance),
	})
	require.NoError(t, err)
	return w
}

func TestNewWallet(t *testing.T) {
	w := newTestWallet(t, 20)
	assert.Equal(t, "user-1", w.UserID())
	assert.Equal(t, "20", w.Balance().String())
	assert.Equal(t, 1, w.Version())
}

func TestWalletDebit(t *testing.T) {
	w := newTestWallet(t, 20)
	require.NoError(t, w.Debit(decimal.NewFromInt(3), "reservation fee"))
	assert.Equal(t, "17", w.Balance().String())
}

func TestWalletDebitInsufficientFunds(t *testing.T) {
	w := newTestWallet(t, 2)
	err := w.Debit(decimal.NewFromInt(3), "reservation fee")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInsufficientFunds))
	assert.Equal(t, "2", w.Balance().String())
	assert.Equal(t, 1, w.Version())
}

func TestWalletCredit(t *testing.T) {
	w := newTestWallet(t, 0)
	require.NoError(t, w.Credit(decimal.RequireFromString("10.50"), "deposit"))
	assert.Equal(t, "10.5", w.Balance().String())

	err := w.Credit(decimal.Zero, "deposit")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}

func TestRehydrateWallet(t *testing.T) {
	w := newTestWallet(t, 20)
	require.NoError(t, w.Debit(decimal.NewFromInt(3), "reservation fee"))
	require.NoError(t, w.Credit(decimal.NewFromInt(5), "deposit"))

	rehydrated, err := RehydrateWallet(w.UncommittedEvents(), nil)
	require.NoError(t, err)
	assert.Equal(t, "22", rehydrated.Balance().String())
	assert.Equal(t, 3, rehydrated.Version())
}
