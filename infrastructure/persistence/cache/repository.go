package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"bibliotek/application/ports"
	"bibliotek/pkg/common"
)

// DefaultTTL bounds staleness for cached read models.
const DefaultTTL = 30 * time.Second

// CachedRepository decorates a projection repository with a read-through
// cache on GetByID. Writes invalidate; the TTL covers writes from other
// instances that this one never sees.
type CachedRepository[T ports.Projection] struct {
	inner  ports.ProjectionRepository[T]
	cache  Cache
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedRepository wraps inner. prefix namespaces the keys per read model.
func NewCachedRepository[T ports.Projection](inner ports.ProjectionRepository[T], c Cache, prefix string, ttl time.Duration, logger *zap.Logger) *CachedRepository[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRepository[T]{inner: inner, cache: c, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *CachedRepository[T]) key(id string) string {
	return r.prefix + ":" + id
}

// Save implements ports.ProjectionRepository.
func (r *CachedRepository[T]) Save(ctx context.Context, doc T) error {
	if err := r.inner.Save(ctx, doc); err != nil {
		return err
	}
	r.invalidate(ctx, doc.ProjectionID())
	return nil
}

// UpdateIfNewer implements ports.ProjectionRepository.
func (r *CachedRepository[T]) UpdateIfNewer(ctx context.Context, id string, changes map[string]interface{}, incomingVersion int) (bool, error) {
	applied, err := r.inner.UpdateIfNewer(ctx, id, changes, incomingVersion)
	if applied {
		r.invalidate(ctx, id)
	}
	return applied, err
}

// SimpleUpdate implements ports.ProjectionRepository.
func (r *CachedRepository[T]) SimpleUpdate(ctx context.Context, id string, changes map[string]interface{}) error {
	if err := r.inner.SimpleUpdate(ctx, id, changes); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

// MarkDeleted implements ports.ProjectionRepository.
func (r *CachedRepository[T]) MarkDeleted(ctx context.Context, id string, version int, deletedAt time.Time) error {
	if err := r.inner.MarkDeleted(ctx, id, version, deletedAt); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

// GetByID implements ports.ProjectionRepository. Only plain lookups are
// cached; field masks and deleted-inclusive reads go straight through.
func (r *CachedRepository[T]) GetByID(ctx context.Context, id string, opts ports.QueryOptions) (T, error) {
	if len(opts.FieldMask) > 0 || opts.IncludeDeleted {
		return r.inner.GetByID(ctx, id, opts)
	}

	if raw, hit, err := r.cache.Get(ctx, r.key(id)); err != nil {
		r.logger.Warn("cache read failed, falling through", zap.String("key", r.key(id)), zap.Error(err))
	} else if hit {
		var doc T
		if err := json.Unmarshal(raw, &doc); err == nil {
			return doc, nil
		}
		r.invalidate(ctx, id)
	}

	doc, err := r.inner.GetByID(ctx, id, opts)
	if err != nil {
		return doc, err
	}
	if raw, err := json.Marshal(doc); err == nil {
		if err := r.cache.Set(ctx, r.key(id), raw, r.ttl); err != nil {
			r.logger.Warn("cache write failed", zap.String("key", r.key(id)), zap.Error(err))
		}
	}
	return doc, nil
}

// GetAll implements ports.ProjectionRepository; list reads are not cached.
func (r *CachedRepository[T]) GetAll(ctx context.Context, filter map[string]interface{}, page common.PaginationParams, opts ports.QueryOptions) ([]T, int64, error) {
	return r.inner.GetAll(ctx, filter, page, opts)
}

func (r *CachedRepository[T]) invalidate(ctx context.Context, id string) {
	if err := r.cache.Delete(ctx, r.key(id)); err != nil {
		r.logger.Warn("cache invalidation failed", zap.String("key", r.key(id)), zap.Error(err))
	}
}
