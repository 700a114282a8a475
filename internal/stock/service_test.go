package stock

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"stockcount/internal"
	"stockcount/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc := NewService(db, db, time.UTC, nil)
	clock := time.Date(2026, 3, 9, 14, 5, 7, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, db
}

func TestFormatExport(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	items := []internal.StockItem{
		{Barcode: "7894900530001", Quantity: 3, Timestamp: time.Date(2026, 3, 9, 14, 5, 7, 0, time.UTC)},
		{Barcode: "INT123", Quantity: 1, Timestamp: time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)},
	}
	assert.Equal(t, "20260309;7894900530001;110507;3\n20260309;INT123;220000;1", FormatExport(items, loc))
	assert.Equal(t, "contagem_estoque_20260309_110507.txt", ExportFileName(items[0].Timestamp.In(loc)))
}

func TestAddLooksUpProduct(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	require.NoError(t, db.InsertProduct(ctx, internal.ProductInput{Code: "7894900530001", Description: "AGUA SEM GAS"}))

	res, err := svc.Add(ctx, " 7894900530001 ", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Item.Quantity)
	assert.Equal(t, "7894900530001", res.Item.Barcode)
	require.NotNil(t, res.Product)
	assert.Equal(t, "AGUA SEM GAS", res.Product.Description)

	res, err = svc.Add(ctx, "999", 4)
	require.NoError(t, err)
	assert.Nil(t, res.Product)

	_, err = svc.Add(ctx, "  ", 1)
	assert.ErrorIs(t, err, ErrInvalidBarcode)
	_, err = svc.Add(ctx, "999", -2)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestUpdateQuantityRemovesAtZero(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Add(ctx, "111", 2)
	require.NoError(t, err)
	b, err := svc.Add(ctx, "222", 5)
	require.NoError(t, err)

	removed, err := svc.UpdateQuantity(ctx, a.Item.ID, 7)
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = svc.UpdateQuantity(ctx, b.Item.ID, 0)
	require.NoError(t, err)
	assert.True(t, removed)

	items, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 7, items[0].Quantity)
	assert.Equal(t, 7, TotalQuantity(items))

	assert.ErrorIs(t, svc.Remove(ctx, b.Item.ID), internal.ErrNotFound)
}

func TestExportWritesFile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	dir := t.TempDir()

	_, err := svc.Export(ctx, dir)
	assert.ErrorIs(t, err, ErrEmptyCount)

	_, err = svc.Add(ctx, "111", 2)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "222", 1)
	require.NoError(t, err)

	path, err := svc.Export(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, "contagem_estoque_20260309_140510.txt", filepath.Base(path))

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "20260309;222;140509;1\n20260309;111;140508;2", string(blob))

	n, err := svc.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestWriteXLSX(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	require.NoError(t, db.InsertProduct(ctx, internal.ProductInput{Code: "7894900530001", Description: "AGUA SEM GAS"}))
	_, err := svc.Add(ctx, "7894900530001", 3)
	require.NoError(t, err)

	buf := bytes.NewBuffer(nil)
	require.NoError(t, svc.WriteXLSX(ctx, buf))

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"data", "codigo_barras", "hora", "quantidade", "descricao"}, rows[0])
	assert.Equal(t, "7894900530001", rows[1][1])
	assert.Equal(t, "AGUA SEM GAS", rows[1][4])

	out := filepath.Join(t.TempDir(), "out", "contagem.xlsx")
	require.NoError(t, svc.ExportXLSX(ctx, out))
	_, err = os.Stat(out)
	assert.NoError(t, err)
}
