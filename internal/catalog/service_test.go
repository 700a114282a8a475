package catalog

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcount/internal"
	"stockcount/internal/pipeline"
	"stockcount/internal/searchcache"
)

func newTestService(t *testing.T, pageSize int) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	cache := searchcache.New(store, searchcache.Options{Capacity: 10})
	return NewService(store, cache, nil, pageSize), store
}

func TestServiceAddNormalizes(t *testing.T) {
	svc, _ := newTestService(t, 0)

	p, err := svc.Add(context.Background(), internal.ProductInput{Code: " abc1 ", Description: " " + strings.Repeat("y", 210)})
	require.NoError(t, err)
	assert.Equal(t, "ABC1", p.Code)
	assert.Len(t, p.Description, internal.MaxDescriptionLen)
	assert.NotEmpty(t, p.ID)
}

func TestServiceAddValidation(t *testing.T) {
	svc, _ := newTestService(t, 0)

	_, err := svc.Add(context.Background(), internal.ProductInput{Code: "  ", Description: "x"})
	assert.ErrorIs(t, err, ErrInvalidProduct)

	_, err = svc.Add(context.Background(), internal.ProductInput{Code: "A1", Description: "first"})
	require.NoError(t, err)
	_, err = svc.Add(context.Background(), internal.ProductInput{Code: "a1", Description: "second"})
	assert.ErrorIs(t, err, internal.ErrDuplicateKey)
	assert.Contains(t, err.Error(), "code already exists")
}

func TestServiceMutationsResetSearchCache(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	_, err := svc.Add(ctx, internal.ProductInput{Code: "789", Description: "agua sem gas"})
	require.NoError(t, err)

	got, err := svc.Search(ctx, "agua", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, svc.Cache().Contains("AGUA"))

	p, err := svc.Add(ctx, internal.ProductInput{Code: "790", Description: "agua com gas"})
	require.NoError(t, err)
	assert.Equal(t, 0, svc.Cache().Len())

	got, err = svc.Search(ctx, "agua", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "790", got[0].Code, "newest first")

	_, err = svc.Update(ctx, p.ID, internal.ProductInput{Code: "790", Description: "suco"})
	require.NoError(t, err)
	got, err = svc.Search(ctx, "agua", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, svc.Remove(ctx, p.ID))
	assert.ErrorIs(t, svc.Remove(ctx, p.ID), internal.ErrNotFound)

	n, err := svc.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err = svc.Search(ctx, "agua", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestServiceFindByCode(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	_, err := svc.Add(ctx, internal.ProductInput{Code: "INT123", Description: "cabo"})
	require.NoError(t, err)

	p, err := svc.FindByCode(ctx, " int123 ")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "CABO", p.Description)

	p, err = svc.FindByCode(ctx, "INT12")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestServicePage(t *testing.T) {
	svc, _ := newTestService(t, 2)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := svc.Add(ctx, internal.ProductInput{Code: fmt.Sprintf("C%d", i), Description: "item"})
		require.NoError(t, err)
	}

	first, err := svc.Page(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Total)
	assert.Equal(t, 3, first.TotalPages)
	require.Len(t, first.Items, 2)
	assert.Equal(t, "C4", first.Items[0].Code)

	last, err := svc.Page(ctx, 3)
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	assert.Equal(t, "C0", last.Items[0].Code)

	beyond, err := svc.Page(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
}

func TestMemoryStoreInsertIsAllOrNothing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.InsertProduct(ctx, internal.ProductInput{Code: "B", Description: "b"}))

	err := store.InsertProducts(ctx, []internal.ProductInput{{Code: "A", Description: "a"}, {Code: "B", Description: "b2"}})
	assert.ErrorIs(t, err, internal.ErrDuplicateKey)
	n, _ := store.CountProducts(ctx)
	assert.Equal(t, 1, n)

	err = store.InsertProducts(ctx, []internal.ProductInput{{Code: "C", Description: "c"}, {Code: "C", Description: "c2"}})
	assert.ErrorIs(t, err, internal.ErrDuplicateKey)

	require.NoError(t, store.UpsertProducts(ctx, []internal.ProductInput{{Code: "B", Description: "b3"}, {Code: "D", Description: "d"}}))
	p, _ := store.FindProductByCode(ctx, "B")
	assert.Equal(t, "b3", p.Description)
	n, _ = store.CountProducts(ctx)
	assert.Equal(t, 2, n)
}

func TestMemoryStoreBacksImporter(t *testing.T) {
	store := NewMemoryStore()
	im := pipeline.NewImporter(store, pipeline.Options{BatchSize: 2}, nil)

	summary, err := im.ImportCatalog(context.Background(), feedBody+"x;0000000000000;cabo\n0000000020625;7894900530001;AGUA DUP\n")
	require.NoError(t, err)
	assert.Equal(t, internal.ImportSummary{TotalCandidates: 4, Imported: 3, SkippedExisting: 1}, summary)

	store.SetUnavailable(true)
	_, err = im.ImportCatalog(context.Background(), feedBody)
	assert.ErrorIs(t, err, internal.ErrStoreUnavailable)
}
