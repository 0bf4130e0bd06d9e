package commands

import (
	"context"

	"bibliotek/application/commands/bus"
	"bibliotek/application/services"
	"bibliotek/pkg/errors"
	"bibliotek/pkg/utils"
)

// CreateReservationCommand starts a reservation. The book is validated
// asynchronously; CreatedID is populated by the handler.
type CreateReservationCommand struct {
	BookID string `json:"bookId" validate:"required,uuid4"`
	UserID string `json:"userId" validate:"required"`

	CreatedID string `json:"-" validate:"-"`
}

// Validate implements bus.Command.
func (c *CreateReservationCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return errors.NewValidationError(err.Error())
	}
	return nil
}

// CancelReservationCommand cancels an active reservation.
type CancelReservationCommand struct {
	ID string `json:"id" validate:"required,uuid4"`
}

// Validate implements bus.Command.
func (c *CancelReservationCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return errors.NewValidationError(err.Error())
	}
	return nil
}

// BorrowReservationCommand records the physical pickup.
type BorrowReservationCommand struct {
	ID string `json:"id" validate:"required,uuid4"`
}

// Validate implements bus.Command.
func (c *BorrowReservationCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return errors.NewValidationError(err.Error())
	}
	return nil
}

// MarkReservationLateCommand flags an overdue loan.
type MarkReservationLateCommand struct {
	ID string `json:"id" validate:"required,uuid4"`
}

// Validate implements bus.Command.
func (c *MarkReservationLateCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return errors.NewValidationError(err.Error())
	}
	return nil
}

// ReturnReservationCommand closes the loan. Result is populated by the
// handler with the final status and applied late fee.
type ReturnReservationCommand struct {
	ID string `json:"id" validate:"required,uuid4"`

	Result *services.ReturnResult `json:"-" validate:"-"`
}

// Validate implements bus.Command.
func (c *ReturnReservationCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return errors.NewValidationError(err.Error())
	}
	return nil
}

// RegisterReservationHandlers wires the reservation commands to the service.
func RegisterReservationHandlers(b *bus.CommandBus, svc *services.ReservationService) error {
	if err := b.Register(&CreateReservationCommand{}, bus.CommandHandlerFunc(func(ctx context.Context, cmd bus.Command) error {
		c := cmd.(*CreateReservationCommand)
		id, err := svc.CreateReservation(ctx, c.BookID, c.UserID)
		if err != nil {
			return err
		}
		c.CreatedID = id
		return nil
	})); err != nil {
		return err
	}

	if err := b.Register(&CancelReservationCommand{}, bus.CommandHandlerFunc(func(ctx context.Context, cmd bus.Command) error {
		return svc.CancelReservation(ctx, cmd.(*CancelReservationCommand).ID)
	})); err != nil {
		return err
	}

	if err := b.Register(&BorrowReservationCommand{}, bus.CommandHandlerFunc(func(ctx context.Context, cmd bus.Command) error {
		return svc.BorrowReservation(ctx, cmd.(*BorrowReservationCommand).ID)
	})); err != nil {
		return err
	}

	if err := b.Register(&MarkReservationLateCommand{}, bus.CommandHandlerFunc(func(ctx context.Context, cmd bus.Command) error {
		return svc.MarkReservationLate(ctx, cmd.(*MarkReservationLateCommand).ID)
	})); err != nil {
		return err
	}

	return b.Register(&ReturnReservationCommand{}, bus.CommandHandlerFunc(func(ctx context.Context, cmd bus.Command) error {
		c := cmd.(*ReturnReservationCommand)
		result, err := svc.ReturnReservation(ctx, c.ID)
		if err != nil {
			return err
		}
		c.Result = result
		return nil
	}))
}
