package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"stockcount/internal"
)

func (d *DB) AddStockItem(ctx context.Context, barcode string, quantity int, at time.Time) (internal.StockItem, error) {
	item := internal.StockItem{
		ID:        uuid.NewString(),
		Barcode:   barcode,
		Quantity:  quantity,
		Timestamp: at.UTC(),
	}
	_, err := d.conn.ExecContext(ctx, `INSERT INTO stock_items (id, barcode, quantity, timestamp) VALUES (?, ?, ?, ?)`,
		item.ID, item.Barcode, item.Quantity, formatTime(item.Timestamp))
	if err != nil {
		return internal.StockItem{}, classify(err)
	}
	return item, nil
}

func (d *DB) UpdateStockQuantity(ctx context.Context, id string, quantity int) error {
	res, err := d.conn.ExecContext(ctx, `UPDATE stock_items SET quantity = ? WHERE id = ?`, quantity, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return internal.ErrNotFound
	}
	return nil
}

func (d *DB) DeleteStockItem(ctx context.Context, id string) error {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM stock_items WHERE id = ?`, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return internal.ErrNotFound
	}
	return nil
}

func (d *DB) DeleteAllStockItems(ctx context.Context) (int64, error) {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM stock_items`)
	if err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected()
}

// ListStockItems returns the current count, most recent scan first.
func (d *DB) ListStockItems(ctx context.Context) ([]internal.StockItem, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT id, barcode, quantity, timestamp FROM stock_items ORDER BY timestamp DESC, rowid DESC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []internal.StockItem{}
	for rows.Next() {
		var item internal.StockItem
		var ts string
		if err := rows.Scan(&item.ID, &item.Barcode, &item.Quantity, &ts); err != nil {
			return nil, err
		}
		item.Timestamp = parseTime(ts)
		out = append(out, item)
	}
	return out, rows.Err()
}
