package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"stockcount/internal"
)

func (s *Store) AddStockItem(ctx context.Context, barcode string, quantity int, at time.Time) (internal.StockItem, error) {
	var item internal.StockItem
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO stock_items (id, barcode, quantity, timestamp)
		VALUES ($1, $2, $3, $4)
		RETURNING id, barcode, quantity, timestamp`,
		uuid.NewString(), barcode, quantity, at.UTC(),
	).StructScan(&item)
	if err != nil {
		return internal.StockItem{}, classify("add stock item", err)
	}
	return item, nil
}

func (s *Store) UpdateStockQuantity(ctx context.Context, id string, quantity int) error {
	if _, err := uuid.Parse(id); err != nil {
		return internal.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `UPDATE stock_items SET quantity = $1 WHERE id = $2`, quantity, id)
	if err != nil {
		return classify("update stock quantity", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return internal.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteStockItem(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return internal.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM stock_items WHERE id = $1`, id)
	if err != nil {
		return classify("delete stock item", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return internal.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAllStockItems(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stock_items`)
	if err != nil {
		return 0, classify("delete all stock items", err)
	}
	return res.RowsAffected()
}

func (s *Store) ListStockItems(ctx context.Context) ([]internal.StockItem, error) {
	out := []internal.StockItem{}
	err := s.db.SelectContext(ctx, &out, `SELECT id, barcode, quantity, timestamp FROM stock_items ORDER BY timestamp DESC`)
	if err != nil {
		return nil, classify("list stock items", err)
	}
	return out, nil
}
