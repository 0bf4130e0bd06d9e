package commands

import (
	"context"

	"github.com/shopspring/decimal"

	"bibliotek/application/commands/bus"
	"bibliotek/application/services"
	"bibliotek/domain/core/aggregates"
	"bibliotek/pkg/errors"
	"bibliotek/pkg/utils"
)

// CreateBookCommand adds a book to the catalog. CreatedID is populated by the
// handler after dispatch.
type CreateBookCommand struct {
	Title       string          `json:"title" validate:"required,min=1,max=500"`
	Author      string          `json:"author" validate:"required,min=1,max=200"`
	ISBN        string          `json:"isbn" validate:"required,min=10,max=17"`
	Description string          `json:"description" validate:"max=5000"`
	RetailPrice decimal.Decimal `json:"retailPrice" validate:"-"`

	CreatedID string `json:"-" validate:"-"`
}

// Validate implements bus.Command.
func (c *CreateBookCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return errors.NewValidationError(err.Error())
	}
	if c.RetailPrice.IsNegative() {
		return errors.NewValidationError("retailPrice cannot be negative")
	}
	return nil
}

// UpdateBookCommand applies partial changes; nil fields are untouched.
type UpdateBookCommand struct {
	ID          string  `json:"id" validate:"required,uuid4"`
	Title       *string `json:"title" validate:"-"`
	Author      *string `json:"author" validate:"-"`
	Description *string `json:"description" validate:"-"`
}

// Validate implements bus.Command.
func (c *UpdateBookCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return errors.NewValidationError(err.Error())
	}
	if c.Title == nil && c.Author == nil && c.Description == nil {
		return errors.NewValidationError("nothing to update")
	}
	return nil
}

// SetBookRetailPriceCommand changes a book's price.
type SetBookRetailPriceCommand struct {
	ID          string          `json:"id" validate:"required,uuid4"`
	RetailPrice decimal.Decimal `json:"retailPrice" validate:"-"`
}

// Validate implements bus.Command.
func (c *SetBookRetailPriceCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return errors.NewValidationError(err.Error())
	}
	if c.RetailPrice.IsNegative() {
		return errors.NewValidationError("retailPrice cannot be negative")
	}
	return nil
}

// DeleteBookCommand soft-deletes a book.
type DeleteBookCommand struct {
	ID string `json:"id" validate:"required,uuid4"`
}

// Validate implements bus.Command.
func (c *DeleteBookCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return errors.NewValidationError(err.Error())
	}
	return nil
}

// RegisterBookHandlers wires the book commands to the service.
func RegisterBookHandlers(b *bus.CommandBus, svc *services.BookService) error {
	if err := b.Register(&CreateBookCommand{}, bus.CommandHandlerFunc(func(ctx context.Context, cmd bus.Command) error {
		c := cmd.(*CreateBookCommand)
		id, err := svc.CreateBook(ctx, aggregates.CreateBookProps{
			Title:       c.Title,
			Author:      c.Author,
			ISBN:        c.ISBN,
			Description: c.Description,
			RetailPrice: c.RetailPrice,
		})
		if err != nil {
			return err
		}
		c.CreatedID = id
		return nil
	})); err != nil {
		return err
	}

	if err := b.Register(&UpdateBookCommand{}, bus.CommandHandlerFunc(func(ctx context.Context, cmd bus.Command) error {
		c := cmd.(*UpdateBookCommand)
		return svc.UpdateBook(ctx, c.ID, aggregates.UpdateBookProps{
			Title:       c.Title,
			Author:      c.Author,
			Description: c.Description,
		})
	})); err != nil {
		return err
	}

	if err := b.Register(&SetBookRetailPriceCommand{}, bus.CommandHandlerFunc(func(ctx context.Context, cmd bus.Command) error {
		c := cmd.(*SetBookRetailPriceCommand)
		return svc.SetRetailPrice(ctx, c.ID, c.RetailPrice)
	})); err != nil {
		return err
	}

	return b.Register(&DeleteBookCommand{}, bus.CommandHandlerFunc(func(ctx context.Context, cmd bus.Command) error {
		c := cmd.(*DeleteBookCommand)
		return svc.DeleteBook(ctx, c.ID)
	}))
}
