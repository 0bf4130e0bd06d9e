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

var bookValidator = validator.New()

// CreateBookProps is the validated input for the Book factory.
type CreateBookProps struct {
	Title       string          `validate:"required,min=1,max=500"`
	Author      string          `validate:"required,min=1,max=200"`
	ISBN        string          `validate:"required,min=10,max=17"`
	Description string          `validate:"max=5000"`
	RetailPrice decimal.Decimal `validate:"-"`
}

// UpdateBookProps carries partial changes; nil fields are left untouched.
type UpdateBookProps struct {
	Title       *string
	Author      *string
	Description *string
}

// Book is the aggregate root for a catalog entry. Pricing and availability
// changes flow through it so reservations always validate against the stream.
type Book struct {
	AggregateRoot

	title       string
	author      string
	isbn        string
	description string
	retailPrice decimal.Decimal
	deletedAt   time.Time
}

// NewBook validates the input and emits BOOK_CREATED at version 1.
func NewBook(props CreateBookProps) (*Book, error) {
	if err := bookValidator.Struct(props); err != nil {
		return nil, errors.NewValidationError("invalid book properties").WithCause(err)
	}
	if props.RetailPrice.IsNegative() {
		return nil, errors.NewValidationError("retail price cannot be negative")
	}

	book := &Book{}
	book.id = uuid.New().String()
	event := book.record(events.BookCreated, map[string]interface{}{
		"title":       props.Title,
		"author":      props.Author,
		"isbn":        props.ISBN,
		"description": props.Description,
		"retailPrice": props.RetailPrice.String(),
	})
	book.apply(event)
	return book, nil
}

// RehydrateBook reconstructs a book from its event stream.
func RehydrateBook(history []events.DomainEvent, logger *zap.Logger) (*Book, error) {
	book := &Book{}
	if err := book.rehydrate(history, book.apply, logger); err != nil {
		return nil, err
	}
	return book, nil
}

// Title returns the book title.
func (b *Book) Title() string { return b.title }

// Author returns the book author.
func (b *Book) Author() string { return b.author }

// ISBN returns the book ISBN.
func (b *Book) ISBN() string { return b.isbn }

// Description returns the book description.
func (b *Book) Description() string { return b.description }

// RetailPrice returns the current retail price.
func (b *Book) RetailPrice() decimal.Decimal { return b.retailPrice }

// IsDeleted reports whether the book has been soft-deleted.
func (b *Book) IsDeleted() bool { return !b.deletedAt.IsZero() }

// Update applies partial changes and emits BOOK_UPDATED.
func (b *Book) Update(props UpdateBookProps) error {
	if b.IsDeleted() {
		return errors.NewAlreadyDeletedError("BOOK")
	}

	changes := map[string]interface{}{}
	if props.Title != nil {
		if *props.Title == "" {
			return errors.NewValidationError("title cannot be empty")
		}
		changes["title"] = *props.Title
	}
	if props.Author != nil {
		if *props.Author == "" {
			return errors.NewValidationError("author cannot be empty")
		}
		changes["author"] = *props.Author
	}
	if props.Description != nil {
		changes["description"] = *props.Description
	}
	if len(changes) == 0 {
		return errors.NewValidationError("no changes provided")
	}

	b.apply(b.record(events.BookUpdated, changes))
	return nil
}

// SetRetailPrice emits BOOK_RETAIL_PRICE_UPDATED.
func (b *Book) SetRetailPrice(price decimal.Decimal) error {
	if b.IsDeleted() {
		return errors.NewAlreadyDeletedError("BOOK")
	}
	if price.IsNegative() {
		return errors.NewValidationError("retail price cannot be negative")
	}

	b.apply(b.record(events.BookRetailPriceUpdated, map[string]interface{}{
		"retailPrice": price.String(),
	}))
	return nil
}

// Delete soft-deletes the book. The event stream is append-only; deletion is
// recorded as an event and surfaced to projections as deletedAt.
func (b *Book) Delete() error {
	if b.IsDeleted() {
		return errors.NewAlreadyDeletedError("BOOK")
	}

	b.apply(b.record(events.BookDeleted, map[string]interface{}{
		"deletedAt": time.Now().UTC().Format(time.RFC3339Nano),
	}))
	return nil
}

func (b *Book) apply(event events.DomainEvent) bool {
	switch event.EventType {
	case events.BookCreated:
		b.title = event.PayloadString("title")
		b.author = event.PayloadString("author")
		b.isbn = event.PayloadString("isbn")
		b.description = event.PayloadString("description")
		b.retailPrice = payloadDecimal(event, "retailPrice")
	case events.BookUpdated:
		if v, ok := event.Payload["title"]; ok {
			b.title, _ = v.(string)
		}
		if v, ok := event.Payload["author"]; ok {
			b.author, _ = v.(string)
		}
		if v, ok := event.Payload["description"]; ok {
			b.description, _ = v.(string)
		}
	case events.BookRetailPriceUpdated:
		b.retailPrice = payloadDecimal(event, "retailPrice")
	case events.BookDeleted:
		b.deletedAt = event.PayloadTime("deletedAt")
		if b.deletedAt.IsZero() {
			b.deletedAt = event.Timestamp
		}
	default:
		return false
	}
	return true
}
