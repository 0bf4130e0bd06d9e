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

// GetWalletQuery fetches one wallet by id.
type GetWalletQuery struct {
	ID string `validate:"required,uuid4"`
}

// Validate implements bus.Query.
func (q *GetWalletQuery) Validate() error {
	if err := utils.ValidateStruct(q); err != nil {
		return errors.NewValidationError(err.Error())
	}
	return nil
}

// GetWalletByUserQuery fetches the wallet owned by a user.
type GetWalletByUserQuery struct {
	UserID string `validate:"required"`
}

// Validate implements bus.Query.
func (q *GetWalletByUserQuery) Validate() error {
	if err := utils.ValidateStruct(q); err != nil {
		return errors.NewValidationError(err.Error())
	}
	return nil
}

// RegisterWalletHandlers wires the wallet queries to the read repository.
func RegisterWalletHandlers(b *bus.QueryBus, repo ports.ProjectionRepository[projections.WalletReadModel]) error {
	if err := b.Register(&GetWalletQuery{}, bus.QueryHandlerFunc(func(ctx context.Context, query bus.Query) (interface{}, error) {
		q := query.(*GetWalletQuery)
		wallet, err := repo.GetByID(ctx, q.ID, ports.QueryOptions{})
		if err != nil {
			return nil, err
		}
		return wallet, nil
	})); err != nil {
		return err
	}

	return b.Register(&GetWalletByUserQuery{}, bus.QueryHandlerFunc(func(ctx context.Context, query bus.Query) (interface{}, error) {
		q := query.(*GetWalletByUserQuery)
		page, _, err := repo.GetAll(ctx,
			map[string]interface{}{"userId": q.UserID},
			common.PaginationParams{Page: 1, Limit: 1},
			ports.QueryOptions{})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return nil, errors.NewNotFoundError(errors.CodeWalletNotFound, "wallet for user "+q.UserID)
		}
		return page[0], nil
	}))
}
