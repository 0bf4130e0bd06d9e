package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/pkg/common"
	"bibliotek/pkg/errors"
)

// ProjectionRepository is the versioned Mongo read-model store shared by all
// projections. Every conditional write carries a version fence so replayed
// and duplicated events cannot move a document backwards.
type ProjectionRepository[T ports.Projection] struct {
	coll         *mongo.Collection
	notFoundCode string
	resource     string
	logger       *zap.Logger
}

// NewProjectionRepository builds a repository over one collection.
// notFoundCode is the resource-specific lookup failure, e.g. BOOK_NOT_FOUND.
func NewProjectionRepository[T ports.Projection](db *mongo.Database, collection, notFoundCode, resource string, logger *zap.Logger) *ProjectionRepository[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectionRepository[T]{
		coll:         db.Collection(collection),
		notFoundCode: notFoundCode,
		resource:     resource,
		logger:       logger,
	}
}

// Save inserts or fully replaces the document keyed by its id.
func (r *ProjectionRepository[T]) Save(ctx context.Context, doc T) error {
	if doc.ProjectionID() == "" {
		return errors.NewValidationError("projection id is required")
	}

	_, err := r.coll.ReplaceOne(ctx,
		bson.M{"_id": doc.ProjectionID()},
		doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return errors.NewInfrastructureError(errors.CodeEventStoreUnavailable, "failed to save projection", err)
	}
	return nil
}

// UpdateIfNewer applies changes only when the stored version is below
// incomingVersion. Returns false when the id is unknown or the update is
// stale; the caller decides whether that is a lost event or a no-op.
func (r *ProjectionRepository[T]) UpdateIfNewer(ctx context.Context, id string, changes map[string]interface{}, incomingVersion int) (bool, error) {
	set := bson.M{
		"version":   incomingVersion,
		"updatedAt": time.Now().UTC(),
	}
	for k, v := range changes {
		set[k] = v
	}

	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "version": bson.M{"$lt": incomingVersion}},
		bson.M{"$set": set})
	if err != nil {
		return false, errors.NewInfrastructureError(errors.CodeEventStoreUnavailable, "failed to update projection", err)
	}
	return result.MatchedCount > 0, nil
}

// SimpleUpdate applies changes without the version fence. Only for fields
// whose final value does not depend on event order.
func (r *ProjectionRepository[T]) SimpleUpdate(ctx context.Context, id string, changes map[string]interface{}) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range changes {
		set[k] = v
	}

	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return errors.NewInfrastructureError(errors.CodeEventStoreUnavailable, "failed to update projection", err)
	}
	return nil
}

// MarkDeleted soft-deletes the document through the version fence, keeping
// it around for audits.
func (r *ProjectionRepository[T]) MarkDeleted(ctx context.Context, id string, version int, deletedAt time.Time) error {
	_, err := r.UpdateIfNewer(ctx, id, map[string]interface{}{
		"deletedAt": deletedAt.UTC(),
	}, version)
	return err
}

// GetByID returns the document or a resource-specific not-found error.
func (r *ProjectionRepository[T]) GetByID(ctx context.Context, id string, opts ports.QueryOptions) (T, error) {
	var doc T

	filter := bson.M{"_id": id}
	if !opts.IncludeDeleted {
		filter["deletedAt"] = nil
	}

	findOpts := options.FindOne()
	if projection := fieldMaskProjection(opts.FieldMask); projection != nil {
		findOpts.SetProjection(projection)
	}

	err := r.coll.FindOne(ctx, filter, findOpts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return doc, errors.NewNotFoundError(r.notFoundCode, r.resource)
	}
	if err != nil {
		return doc, errors.NewInfrastructureError(errors.CodeEventStoreUnavailable, "failed to read projection", err)
	}
	return doc, nil
}

// GetAll returns one page of documents matching the filter plus the total
// match count.
func (r *ProjectionRepository[T]) GetAll(ctx context.Context, filter map[string]interface{}, page common.PaginationParams, opts ports.QueryOptions) ([]T, int64, error) {
	query := bson.M{}
	for k, v := range filter {
		query[k] = v
	}
	if !opts.IncludeDeleted {
		query["deletedAt"] = nil
	}

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, errors.NewInfrastructureError(errors.CodeEventStoreUnavailable, "failed to count projections", err)
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Limit))
	if projection := fieldMaskProjection(opts.FieldMask); projection != nil {
		findOpts.SetProjection(projection)
	}

	cursor, err := r.coll.Find(ctx, query, findOpts)
	if err != nil {
		return nil, 0, errors.NewInfrastructureError(errors.CodeEventStoreUnavailable, "failed to list projections", err)
	}

	var docs []T
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, errors.NewInfrastructureError(errors.CodeEventStoreUnavailable, "failed to decode projections", err)
	}
	return docs, total, nil
}

func fieldMaskProjection(mask []string) bson.M {
	if len(mask) == 0 {
		return nil
	}
	projection := bson.M{}
	for _, field := range mask {
		projection[field] = 1
	}
	return projection
}
