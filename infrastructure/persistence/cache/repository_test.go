package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliotek/application/ports"
	"bibliotek/application/projections"
	"bibliotek/infrastructure/persistence/memory"
	"bibliotek/pkg/errors"
)

func newCachedBookRepo(t *testing.T) (*CachedRepository[projections.BookReadModel], *memory.ProjectionRepository[projections.BookReadModel], *MemoryCache) {
	t.Helper()
	inner := memory.NewProjectionRepository[projections.BookReadModel](errors.CodeBookNotFound, "book")
	store := NewMemoryCache()
	return NewCachedRepository[projections.BookReadModel](inner, store, "book", time.Minute, nil), inner, store
}

func sampleBook(id string, version int) projections.BookReadModel {
	now := time.Now().UTC()
	return projections.BookReadModel{
		ID:          id,
		Title:       "The Go Programming Language",
		Author:      "Donovan & Kernighan",
		ISBN:        "9780134190440",
		RetailPrice: "32.0",
		Version:     version,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCachedRepositoryReadThrough(t *testing.T) {
	repo, inner, store := newCachedBookRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleBook("b1", 1)))

	first, err := repo.GetByID(ctx, "b1", ports.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "The Go Programming Language", first.Title)

	_, hit, err := store.Get(ctx, "book:b1")
	require.NoError(t, err)
	assert.True(t, hit, "first read should have populated the cache")

	// A write bypassing the decorator leaves the cache stale; the cached
	// value wins until invalidation or expiry.
	applied, err := inner.UpdateIfNewer(ctx, "b1", map[string]interface{}{"title": "renamed"}, 2)
	require.NoError(t, err)
	require.True(t, applied)

	second, err := repo.GetByID(ctx, "b1", ports.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "The Go Programming Language", second.Title)
}

func TestCachedRepositoryWriteInvalidates(t *testing.T) {
	repo, _, store := newCachedBookRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleBook("b1", 1)))
	_, err := repo.GetByID(ctx, "b1", ports.QueryOptions{})
	require.NoError(t, err)

	applied, err := repo.UpdateIfNewer(ctx, "b1", map[string]interface{}{"title": "renamed"}, 2)
	require.NoError(t, err)
	require.True(t, applied)

	_, hit, err := store.Get(ctx, "book:b1")
	require.NoError(t, err)
	assert.False(t, hit, "update should have invalidated the cache")

	doc, err := repo.GetByID(ctx, "b1", ports.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "renamed", doc.Title)
}

func TestCachedRepositoryMaskedReadsBypassCache(t *testing.T) {
	repo, _, store := newCachedBookRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleBook("b1", 1)))

	_, err := repo.GetByID(ctx, "b1", ports.QueryOptions{FieldMask: []string{"title"}})
	require.NoError(t, err)

	_, hit, err := store.Get(ctx, "book:b1")
	require.NoError(t, err)
	assert.False(t, hit, "masked read must not populate the cache")
}

func TestCachedRepositoryMarkDeleted(t *testing.T) {
	repo, _, _ := newCachedBookRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleBook("b1", 1)))
	_, err := repo.GetByID(ctx, "b1", ports.QueryOptions{})
	require.NoError(t, err)

	require.NoError(t, repo.MarkDeleted(ctx, "b1", 2, time.Now().UTC()))

	_, err = repo.GetByID(ctx, "b1", ports.QueryOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestMemoryCacheTTL(t *testing.T) {
	store := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	_, hit, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, hit)

	time.Sleep(20 * time.Millisecond)
	_, hit, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit, "expired entry must miss")
}
