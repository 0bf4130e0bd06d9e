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

// GetReservationQuery fetches one reservation by id.
type GetReservationQuery struct {
	ID     string   `validate:"required,uuid4"`
	Fields []string `validate:"-"`
}

// Validate implements bus.Query.
func (q *GetReservationQuery) Validate() error {
	if err := utils.ValidateStruct(q); err != nil {
		return errors.NewValidationError(err.Error())
	}
	return nil
}

// ListReservationsQuery pages through reservations, optionally scoped to a
// user and a status.
type ListReservationsQuery struct {
	UserID string                  `validate:"-"`
	Status string                  `validate:"-"`
	Page   common.PaginationParams `validate:"-"`
	Fields []string                `validate:"-"`
}

// Validate implements bus.Query.
func (q *ListReservationsQuery) Validate() error {
	if q.Page.Page < 1 || q.Page.Limit < 1 {
		return errors.NewValidationError("page and limit must be positive")
	}
	return nil
}

// RegisterReservationHandlers wires the reservation queries to the read
// repository.
func RegisterReservationHandlers(b *bus.QueryBus, repo ports.ProjectionRepository[projections.ReservationReadModel]) error {
	if err := b.Register(&GetReservationQuery{}, bus.QueryHandlerFunc(func(ctx context.Context, query bus.Query) (interface{}, error) {
		q := query.(*GetReservationQuery)
		reservation, err := repo.GetByID(ctx, q.ID, ports.QueryOptions{FieldMask: q.Fields})
		if err != nil {
			return nil, err
		}
		return reservation, nil
	})); err != nil {
		return err
	}

	return b.Register(&ListReservationsQuery{}, bus.QueryHandlerFunc(func(ctx context.Context, query bus.Query) (interface{}, error) {
		q := query.(*ListReservationsQuery)
		filter := map[string]interface{}{}
		if q.UserID != "" {
			filter["userId"] = q.UserID
		}
		if q.Status != "" {
			filter["status"] = q.Status
		}
		reservations, total, err := repo.GetAll(ctx, filter, q.Page, ports.QueryOptions{FieldMask: q.Fields})
		if err != nil {
			return nil, err
		}
		return common.NewPaginatedResult(reservations, q.Page.Page, q.Page.Limit, int(total)), nil
	}))
}
