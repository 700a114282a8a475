package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcount/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertProductsConflictIsDuplicateKey(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertProducts(ctx, []internal.ProductInput{
		{Code: "7894900530001", Description: "AGUA CRYSTAL PET 500ML SEM GAS"},
		{Code: "7894900531008", Description: "AGUA CRYSTAL PET 500ML COM GAS"},
	}))

	err := db.InsertProducts(ctx, []internal.ProductInput{
		{Code: "NEW1", Description: "NEW"},
		{Code: "7894900530001", Description: "AGAIN"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, internal.ErrDuplicateKey), "err=%v", err)

	// the failed batch is rolled back as a whole
	exists, err := db.ExistsByKey(ctx, "NEW1")
	require.NoError(t, err)
	assert.False(t, exists)

	err = db.InsertProduct(ctx, internal.ProductInput{Code: "7894900531008", Description: "X"})
	assert.True(t, errors.Is(err, internal.ErrDuplicateKey), "err=%v", err)
}

func TestUpsertProductsOverwritesDescription(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertProducts(ctx, []internal.ProductInput{{Code: "A1", Description: "OLD"}}))
	require.NoError(t, db.UpsertProducts(ctx, []internal.ProductInput{
		{Code: "A1", Description: "NEW"},
		{Code: "A1", Description: "NEWER"},
	}))

	p, err := db.FindProductByCode(ctx, "A1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "NEWER", p.Description)

	n, err := db.CountProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExistingKeys(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertProducts(ctx, []internal.ProductInput{
		{Code: "A", Description: "A"},
		{Code: "B", Description: "B"},
	}))

	got, err := db.ExistingKeys(ctx, []string{"A", "C", "B"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"A": true, "B": true}, got)

	got, err = db.ExistingKeys(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchProductsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertProduct(ctx, internal.ProductInput{Code: "111", Description: "AGUA SEM GAS"}))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, db.InsertProduct(ctx, internal.ProductInput{Code: "222", Description: "AGUA COM GAS"}))
	require.NoError(t, db.InsertProduct(ctx, internal.ProductInput{Code: "AGU50", Description: "SABAO"}))
	require.NoError(t, db.InsertProduct(ctx, internal.ProductInput{Code: "333", Description: "100%_OFF"}))

	got, err := db.SearchProducts(ctx, "AGU", 50)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "AGU50", got[0].Code)
	assert.Equal(t, "222", got[1].Code)
	assert.Equal(t, "111", got[2].Code)

	got, err = db.SearchProducts(ctx, "AGU", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = db.SearchProducts(ctx, "%_", 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "333", got[0].Code)
}

func TestProductCRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	p, err := db.CreateProduct(ctx, internal.ProductInput{Code: "C1", Description: "ONE"})
	require.NoError(t, err)

	_, err = db.CreateProduct(ctx, internal.ProductInput{Code: "C1", Description: "DUP"})
	assert.ErrorIs(t, err, internal.ErrDuplicateKey)

	updated, err := db.UpdateProduct(ctx, p.ID, internal.ProductInput{Code: "C2", Description: "TWO"})
	require.NoError(t, err)
	assert.Equal(t, "C2", updated.Code)
	assert.Equal(t, p.CreatedAt.Unix(), updated.CreatedAt.Unix())

	_, err = db.UpdateProduct(ctx, "missing", internal.ProductInput{Code: "X", Description: "X"})
	assert.ErrorIs(t, err, internal.ErrNotFound)

	missing, err := db.FindProductByCode(ctx, "C1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, db.DeleteProduct(ctx, p.ID))
	assert.ErrorIs(t, db.DeleteProduct(ctx, p.ID), internal.ErrNotFound)
}

func TestListProductsPagination(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	batch := []internal.ProductInput{}
	for _, code := range []string{"P1", "P2", "P3", "P4", "P5"} {
		batch = append(batch, internal.ProductInput{Code: code, Description: code})
	}
	require.NoError(t, db.InsertProducts(ctx, batch))

	page, err := db.ListProducts(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "P5", page[0].Code)

	page, err = db.ListProducts(ctx, 4, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "P1", page[0].Code)

	removed, err := db.DeleteAllProducts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, removed)
}

func TestStockItems(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	first, err := db.AddStockItem(ctx, "789", 2, base)
	require.NoError(t, err)
	second, err := db.AddStockItem(ctx, "456", 1, base.Add(time.Minute))
	require.NoError(t, err)

	items, err := db.ListStockItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, second.ID, items[0].ID)
	assert.True(t, items[1].Timestamp.Equal(base))

	require.NoError(t, db.UpdateStockQuantity(ctx, first.ID, 9))
	assert.ErrorIs(t, db.UpdateStockQuantity(ctx, "nope", 1), internal.ErrNotFound)

	require.NoError(t, db.DeleteStockItem(ctx, second.ID))
	items, err = db.ListStockItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 9, items[0].Quantity)

	n, err := db.DeleteAllStockItems(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestImportRunsAndMetadata(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RecordImportRun(ctx, internal.ImportRun{
		TraceID: "t1", Source: "file:a.txt", Mode: internal.CommitInsertOrSkip,
		Summary: internal.ImportSummary{TotalCandidates: 2, Imported: 2},
	}))
	require.NoError(t, db.RecordImportRun(ctx, internal.ImportRun{
		TraceID: "t2", Source: "api", Mode: internal.CommitUpsert, Error: "boom",
	}))

	runs, err := db.ListImportRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "t2", runs[0].TraceID)
	assert.Equal(t, 2, runs[1].Summary.Imported)

	missing, err := db.GetMetadata("catalog.last_feed_sync")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, db.SetMetadata("catalog.last_feed_sync", "x"))
	require.NoError(t, db.SetMetadata("catalog.last_feed_sync", "y"))
	value, err := db.GetMetadata("catalog.last_feed_sync")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "y", *value)
}

func TestPingClosed(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	require.NoError(t, db.Ping(context.Background()))
	require.NoError(t, db.Close())
	assert.ErrorIs(t, db.Ping(context.Background()), internal.ErrStoreUnavailable)
}
