package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliotek/application/ports"
	"bibliotek/application/projections"
	"bibliotek/pkg/common"
	"bibliotek/pkg/errors"
)

func newBookRepo() *ProjectionRepository[projections.BookReadModel] {
	return NewProjectionRepository[projections.BookReadModel](errors.CodeBookNotFound, "book")
}

func sampleBook(id string, version int) projections.BookReadModel {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return projections.BookReadModel{
		ID:          id,
		Title:       "title",
		Author:      "author",
		ISBN:        "9780134190440",
		RetailPrice: "36",
		Version:     version,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestSaveAndGetByID(t *testing.T) {
	repo := newBookRepo()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleBook("b1", 1)))

	got, err := repo.GetByID(ctx, "b1", ports.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "title", got.Title)
	assert.Equal(t, 1, got.Version)
}

func TestSaveRequiresID(t *testing.T) {
	repo := newBookRepo()
	err := repo.Save(context.Background(), projections.BookReadModel{})
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}

func TestGetByIDNotFound(t *testing.T) {
	repo := newBookRepo()
	_, err := repo.GetByID(context.Background(), "missing", ports.QueryOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeBookNotFound))
}

func TestUpdateIfNewerFencesVersions(t *testing.T) {
	repo := newBookRepo()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, sampleBook("b1", 2)))

	// Stale update: incoming version not above stored.
	matched, err := repo.UpdateIfNewer(ctx, "b1", map[string]interface{}{"title": "old"}, 2)
	require.NoError(t, err)
	assert.False(t, matched)

	matched, err = repo.UpdateIfNewer(ctx, "b1", map[string]interface{}{"title": "new"}, 3)
	require.NoError(t, err)
	assert.True(t, matched)

	got, err := repo.GetByID(ctx, "b1", ports.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, 3, got.Version)

	// Replaying the same update is a no-op: same stored state.
	matched, err = repo.UpdateIfNewer(ctx, "b1", map[string]interface{}{"title": "new"}, 3)
	require.NoError(t, err)
	assert.False(t, matched)

	again, err := repo.GetByID(ctx, "b1", ports.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, got.Title, again.Title)
	assert.Equal(t, got.Version, again.Version)
}

func TestUpdateIfNewerUnknownID(t *testing.T) {
	repo := newBookRepo()
	matched, err := repo.UpdateIfNewer(context.Background(), "missing", map[string]interface{}{"title": "x"}, 2)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestMarkDeletedAndSoftDeleteFilter(t *testing.T) {
	repo := newBookRepo()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, sampleBook("b1", 1)))
	require.NoError(t, repo.MarkDeleted(ctx, "b1", 2, time.Now()))

	_, err := repo.GetByID(ctx, "b1", ports.QueryOptions{})
	assert.True(t, errors.IsCode(err, errors.CodeBookNotFound))

	got, err := repo.GetByID(ctx, "b1", ports.QueryOptions{IncludeDeleted: true})
	require.NoError(t, err)
	require.NotNil(t, got.DeletedAt)
	assert.Equal(t, 2, got.Version)

	// Retrying the delete through the fence changes nothing.
	require.NoError(t, repo.MarkDeleted(ctx, "b1", 2, time.Now().Add(time.Hour)))
	again, err := repo.GetByID(ctx, "b1", ports.QueryOptions{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, got.DeletedAt.Unix(), again.DeletedAt.Unix())
}

func TestSimpleUpdate(t *testing.T) {
	repo := newBookRepo()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, sampleBook("b1", 3)))

	require.NoError(t, repo.SimpleUpdate(ctx, "b1", map[string]interface{}{"retailPrice": "40"}))

	got, err := repo.GetByID(ctx, "b1", ports.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "40", got.RetailPrice)
	// No version fence, no version change.
	assert.Equal(t, 3, got.Version)
}

func TestFieldMask(t *testing.T) {
	repo := newBookRepo()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, sampleBook("b1", 1)))

	got, err := repo.GetByID(ctx, "b1", ports.QueryOptions{FieldMask: []string{"title"}})
	require.NoError(t, err)
	assert.Equal(t, "b1", got.ID)
	assert.Equal(t, "title", got.Title)
	assert.Empty(t, got.Author)
	assert.Empty(t, got.RetailPrice)
}

func TestGetAllPagination(t *testing.T) {
	repo := newBookRepo()
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, repo.Save(ctx, sampleBook(fmt.Sprintf("b%d", i), 1)))
	}
	require.NoError(t, repo.MarkDeleted(ctx, "b5", 2, time.Now()))

	page, total, err := repo.GetAll(ctx, nil, common.PaginationParams{Page: 1, Limit: 3}, ports.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, page, 3)

	page, _, err = repo.GetAll(ctx, nil, common.PaginationParams{Page: 2, Limit: 3}, ports.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	info := common.BuildPaginationInfo(2, 3, 4)
	assert.Equal(t, 2, info.Pages)
	assert.False(t, info.HasNext)
	assert.True(t, info.HasPrev)
}

func TestGetAllFilter(t *testing.T) {
	repo := NewProjectionRepository[projections.ReservationReadModel](errors.CodeReservationNotFound, "reservation")
	ctx := context.Background()

	for i, user := range []string{"u1", "u1", "u2"} {
		require.NoError(t, repo.Save(ctx, projections.ReservationReadModel{
			ID:      fmt.Sprintf("r%d", i),
			BookID:  "b1",
			UserID:  user,
			Status:  "CREATED",
			Version: 1,
		}))
	}

	page, total, err := repo.GetAll(ctx, map[string]interface{}{"userId": "u1"}, common.PaginationParams{Page: 1, Limit: 10}, ports.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, page, 2)
}
