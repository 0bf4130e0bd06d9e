package commands

import (
	"context"

	"github.com/shopspring/decimal"

	"bibliotek/application/commands/bus"
	"bibliotek/application/services"
	"bibliotek/pkg/errors"
	"bibliotek/pkg/utils"
)

// CreateWalletCommand opens a wallet for a user. CreatedID is populated by
// the handler.
type CreateWalletCommand struct {
	UserID         string          `json:"userId" validate:"required"`
	InitialBalance decimal.Decimal `json:"initialBalance" validate:"-"`

	CreatedID string `json:"-" validate:"-"`
}

// Validate implements bus.Command.
func (c *CreateWalletCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return errors.NewValidationError(err.Error())
	}
	if c.InitialBalance.IsNegative() {
		return errors.NewValidationError("initialBalance cannot be negative")
	}
	return nil
}

// DepositCommand credits a wallet.
type DepositCommand struct {
	WalletID string          `json:"walletId" validate:"required,uuid4"`
	Amount   decimal.Decimal `json:"amount" validate:"-"`
}

// Validate implements bus.Command.
func (c *DepositCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return errors.NewValidationError(err.Error())
	}
	if !c.Amount.IsPositive() {
		return errors.NewValidationError("amount must be positive")
	}
	return nil
}

// RegisterWalletHandlers wires the wallet commands to the service.
func RegisterWalletHandlers(b *bus.CommandBus, svc *services.WalletService) error {
	if err := b.Register(&CreateWalletCommand{}, bus.CommandHandlerFunc(func(ctx context.Context, cmd bus.Command) error {
		c := cmd.(*CreateWalletCommand)
		id, err := svc.CreateWallet(ctx, c.UserID, c.InitialBalance)
		if err != nil {
			return err
		}
		c.CreatedID = id
		return nil
	})); err != nil {
		return err
	}

	return b.Register(&DepositCommand{}, bus.CommandHandlerFunc(func(ctx context.Context, cmd bus.Command) error {
		c := cmd.(*DepositCommand)
		return svc.Deposit(ctx, c.WalletID, c.Amount)
	}))
}
