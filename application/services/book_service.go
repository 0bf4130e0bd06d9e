package services

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/domain/core/aggregates"
	"bibliotek/pkg/errors"
)

// BookService executes book commands against the event store.
type BookService struct {
	writer eventWriter
	logger *zap.Logger
}

// NewBookService creates the service.
func NewBookService(store ports.EventStore, bus ports.EventBus, logger *zap.Logger) *BookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookService{
		writer: newEventWriter(store, bus, logger),
		logger: logger,
	}
}

// CreateBook creates a new catalog entry and returns its id.
func (s *BookService) CreateBook(ctx context.Context, props aggregates.CreateBookProps) (string, error) {
	book, err := aggregates.NewBook(props)
	if err != nil {
		return "", err
	}
	if _, err := s.writer.commit(ctx, book.ID(), book.UncommittedEvents(), ""); err != nil {
		return "", err
	}
	return book.ID(), nil
}

// UpdateBook applies partial changes to a book.
func (s *BookService) UpdateBook(ctx context.Context, id string, props aggregates.UpdateBookProps) error {
	book, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := book.Update(props); err != nil {
		return err
	}
	_, err = s.writer.commit(ctx, book.ID(), book.UncommittedEvents(), "")
	return err
}

// SetRetailPrice changes the book's retail price.
func (s *BookService) SetRetailPrice(ctx context.Context, id string, price decimal.Decimal) error {
	book, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := book.SetRetailPrice(price); err != nil {
		return err
	}
	_, err = s.writer.commit(ctx, book.ID(), book.UncommittedEvents(), "")
	return err
}

// DeleteBook soft-deletes the book.
func (s *BookService) DeleteBook(ctx context.Context, id string) error {
	book, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := book.Delete(); err != nil {
		return err
	}
	_, err = s.writer.commit(ctx, book.ID(), book.UncommittedEvents(), "")
	return err
}

func (s *BookService) load(ctx context.Context, id string) (*aggregates.Book, error) {
	stream, err := s.writer.store.GetEventsForAggregate(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(stream) == 0 {
		return nil, errors.NewNotFoundError(errors.CodeBookNotFound, "book")
	}
	return aggregates.RehydrateBook(stream, s.logger)
}
