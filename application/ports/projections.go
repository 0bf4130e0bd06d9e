package ports

import (
	"context"
	"time"

	"bibliotek/pkg/common"
)

// Projection is implemented by every read-model document. The version is the
// aggregate version of the last event folded in; it is the idempotency fence.
type Projection interface {
	ProjectionID() string
	ProjectionVersion() int
}

// QueryOptions tunes projection reads.
type QueryOptions struct {
	// FieldMask limits the returned columns; empty means all.
	FieldMask []string
	// IncludeDeleted lifts the soft-delete filter.
	IncludeDeleted bool
}

// ProjectionRepository is the versioned read-model store. Writes are fenced
// by version so projection handlers can run any number of times per event.
type ProjectionRepository[T Projection] interface {
	// Save inserts or fully replaces the document keyed by its id.
	Save(ctx context.Context, doc T) error

	// UpdateIfNewer applies changes only when the stored version is below
	// incomingVersion, then advances the version. Returns false when nothing
	// matched, either because the id is unknown or the update is stale.
	UpdateIfNewer(ctx context.Context, id string, changes map[string]interface{}, incomingVersion int) (bool, error)

	// SimpleUpdate applies changes without a version fence. Only for fields
	// that are commutative across event order.
	SimpleUpdate(ctx context.Context, id string, changes map[string]interface{}) error

	// MarkDeleted soft-deletes the document through the version fence.
	MarkDeleted(ctx context.Context, id string, version int, deletedAt time.Time) error

	// GetByID returns the document or *_NOT_FOUND. Soft-deleted documents
	// are invisible unless opts.IncludeDeleted is set.
	GetByID(ctx context.Context, id string, opts QueryOptions) (T, error)

	// GetAll returns one page of documents matching the filter plus the
	// total match count.
	GetAll(ctx context.Context, filter map[string]interface{}, page common.PaginationParams, opts QueryOptions) ([]T, int64, error)
}
