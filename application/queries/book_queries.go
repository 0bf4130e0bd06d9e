package queries

import (
	"context"

	"bibliotek/application/ports"
	"bibliotek/application/projections"
	"bibliotek/application/queries/bus"
	"bibliotek/pkg/common"
	"bibliotek/pkg/errors"
	"bibliotek/pkg/utils"
)

// GetBookQuery fetches one book by id. Fields narrows the returned document.
type GetBookQuery struct {
	ID             string   `validate:"required,uuid4"`
	Fields         []string `validate:"-"`
	IncludeDeleted bool     `validate:"-"`
}

// Validate implements bus.Query.
func (q *GetBookQuery) Validate() error {
	if err := utils.ValidateStruct(q); err != nil {
		return errors.NewValidationError(err.Error())
	}
	return nil
}

// ListBooksQuery pages through the catalog.
type ListBooksQuery struct {
	Page   common.PaginationParams `validate:"-"`
	Fields []string                `validate:"-"`
}

// Validate implements bus.Query.
func (q *ListBooksQuery) Validate() error {
	if q.Page.Page < 1 || q.Page.Limit < 1 {
		return errors.NewValidationError("page and limit must be positive")
	}
	return nil
}

// RegisterBookHandlers wires the book queries to the read repository.
func RegisterBookHandlers(b *bus.QueryBus, repo ports.ProjectionRepository[projections.BookReadModel]) error {
	if err := b.Register(&GetBookQuery{}, bus.QueryHandlerFunc(func(ctx context.Context, query bus.Query) (interface{}, error) {
		q := query.(*GetBookQuery)
		book, err := repo.GetByID(ctx, q.ID, ports.QueryOptions{
			FieldMask:      q.Fields,
			IncludeDeleted: q.IncludeDeleted,
		})
		if err != nil {
			return nil, err
		}
		return book, nil
	})); err != nil {
		return err
	}

	return b.Register(&ListBooksQuery{}, bus.QueryHandlerFunc(func(ctx context.Context, query bus.Query) (interface{}, error) {
		q := query.(*ListBooksQuery)
		books, total, err := repo.GetAll(ctx, nil, q.Page, ports.QueryOptions{FieldMask: q.Fields})
		if err != nil {
			return nil, err
		}
		return common.NewPaginatedResult(books, q.Page.Page, q.Page.Limit, int(total)), nil
	}))
}
