package memory

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"bibliotek/application/ports"
	"bibliotek/pkg/common"
	"bibliotek/pkg/errors"
)

// ProjectionRepository is the in-memory counterpart of the Mongo read-model
// store. Documents pass through bson marshalling so the same struct tags are
// exercised, and writes honor the same version fence.
type ProjectionRepository[T ports.Projection] struct {
	mu           sync.Mutex
	docs         map[string]bson.M
	order        []string
	notFoundCode string
	resource     string
}

// NewProjectionRepository creates an empty in-memory repository.
func NewProjectionRepository[T ports.Projection](notFoundCode, resource string) *ProjectionRepository[T] {
	return &ProjectionRepository[T]{
		docs:         make(map[string]bson.M),
		notFoundCode: notFoundCode,
		resource:     resource,
	}
}

// Save inserts or fully replaces the document keyed by its id.
func (r *ProjectionRepository[T]) Save(ctx context.Context, doc T) error {
	if doc.ProjectionID() == "" {
		return errors.NewValidationError("projection id is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := toDocument(doc)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.docs[doc.ProjectionID()]; !exists {
		r.order = append(r.order, doc.ProjectionID())
	}
	r.docs[doc.ProjectionID()] = raw
	return nil
}

// UpdateIfNewer applies changes only when the stored version is below
// incomingVersion.
func (r *ProjectionRepository[T]) UpdateIfNewer(ctx context.Context, id string, changes map[string]interface{}, incomingVersion int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	if !ok || documentInt(doc, "version") >= incomingVersion {
		return false, nil
	}
	for k, v := range changes {
		doc[k] = v
	}
	doc["version"] = incomingVersion
	doc["updatedAt"] = time.Now().UTC()
	return true, nil
}

// SimpleUpdate applies changes without the version fence.
func (r *ProjectionRepository[T]) SimpleUpdate(ctx context.Context, id string, changes map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	if !ok {
		return nil
	}
	for k, v := range changes {
		doc[k] = v
	}
	doc["updatedAt"] = time.Now().UTC()
	return nil
}

// MarkDeleted soft-deletes the document through the version fence.
func (r *ProjectionRepository[T]) MarkDeleted(ctx context.Context, id string, version int, deletedAt time.Time) error {
	_, err := r.UpdateIfNewer(ctx, id, map[string]interface{}{
		"deletedAt": deletedAt.UTC(),
	}, version)
	return err
}

// GetByID returns the document or a resource-specific not-found error.
func (r *ProjectionRepository[T]) GetByID(ctx context.Context, id string, opts ports.QueryOptions) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	r.mu.Lock()
	doc, ok := r.docs[id]
	if ok {
		doc = cloneDocument(doc)
	}
	r.mu.Unlock()

	if !ok || (!opts.IncludeDeleted && isDeleted(doc)) {
		return zero, errors.NewNotFoundError(r.notFoundCode, r.resource)
	}
	return fromDocument[T](applyFieldMask(doc, opts.FieldMask))
}

// GetAll returns one page of documents matching the filter plus the total
// match count. Filter entries are matched by equality.
func (r *ProjectionRepository[T]) GetAll(ctx context.Context, filter map[string]interface{}, page common.PaginationParams, opts ports.QueryOptions) ([]T, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	r.mu.Lock()
	var matched []bson.M
	for _, id := range r.order {
		doc := r.docs[id]
		if !opts.IncludeDeleted && isDeleted(doc) {
			continue
		}
		if !matchesFilter(doc, filter) {
			continue
		}
		matched = append(matched, cloneDocument(doc))
	}
	r.mu.Unlock()

	total := int64(len(matched))
	start := page.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + page.Limit
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]T, 0, end-start)
	for _, doc := range matched[start:end] {
		decoded, err := fromDocument[T](applyFieldMask(doc, opts.FieldMask))
		if err != nil {
			return nil, 0, err
		}
		out = append(out, decoded)
	}
	return out, total, nil
}

func toDocument(v interface{}) (bson.M, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode projection").WithCause(err)
	}
	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewInternalError("failed to decode projection").WithCause(err)
	}
	return doc, nil
}

func fromDocument[T any](doc bson.M) (T, error) {
	var out T
	data, err := bson.Marshal(doc)
	if err != nil {
		return out, errors.NewInternalError("failed to encode projection").WithCause(err)
	}
	if err := bson.Unmarshal(data, &out); err != nil {
		return out, errors.NewInternalError("failed to decode projection").WithCause(err)
	}
	return out, nil
}

func cloneDocument(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func documentInt(doc bson.M, key string) int {
	switch v := doc[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func isDeleted(doc bson.M) bool {
	v, ok := doc["deletedAt"]
	return ok && v != nil
}

func matchesFilter(doc bson.M, filter map[string]interface{}) bool {
	for k, want := range filter {
		if doc[k] != want {
			return false
		}
	}
	return true
}

func applyFieldMask(doc bson.M, mask []string) bson.M {
	if len(mask) == 0 {
		return doc
	}
	out := bson.M{"_id": doc["_id"]}
	for _, field := range mask {
		if v, ok := doc[field]; ok {
			out[field] = v
		}
	}
	return out
}
