package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"stockcount/internal"
)

const productColumns = `id, code, description, created_at, updated_at`

func (d *DB) ExistsByKey(ctx context.Context, key string) (bool, error) {
	var one int
	err := d.conn.QueryRowContext(ctx, `SELECT 1 FROM products WHERE code = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify(err)
	}
	return true, nil
}

// ExistingKeys returns the subset of keys already present in the catalog.
func (d *DB) ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	out := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := d.conn.QueryContext(ctx, `SELECT code FROM products WHERE code IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out[code] = true
	}
	return out, rows.Err()
}

func (d *DB) InsertProducts(ctx context.Context, products []internal.ProductInput) error {
	return d.writeProducts(ctx, products, false)
}

// UpsertProducts inserts or updates by code in one transaction.
func (d *DB) UpsertProducts(ctx context.Context, products []internal.ProductInput) error {
	return d.writeProducts(ctx, products, true)
}

func (d *DB) InsertProduct(ctx context.Context, product internal.ProductInput) error {
	_, err := d.conn.ExecContext(ctx, insertProductSQL(false), uuid.NewString(), product.Code, product.Description, formatTime(time.Now()), formatTime(time.Now()))
	return classify(err)
}

func (d *DB) UpsertProduct(ctx context.Context, product internal.ProductInput) error {
	_, err := d.conn.ExecContext(ctx, insertProductSQL(true), uuid.NewString(), product.Code, product.Description, formatTime(time.Now()), formatTime(time.Now()))
	return classify(err)
}

func (d *DB) writeProducts(ctx context.Context, products []internal.ProductInput, upsert bool) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertProductSQL(upsert))
	if err != nil {
		return classify(err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	for _, p := range products {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), p.Code, p.Description, now, now); err != nil {
			return classify(err)
		}
	}

	return classify(tx.Commit())
}

func insertProductSQL(upsert bool) string {
	query := `INSERT INTO products (id, code, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	if upsert {
		query += `
ON CONFLICT(code) DO UPDATE SET
  description = excluded.description,
  updated_at = excluded.updated_at`
	}
	return query
}

func (d *DB) CreateProduct(ctx context.Context, in internal.ProductInput) (internal.Product, error) {
	now := time.Now().UTC()
	p := internal.Product{
		ID:          uuid.NewString(),
		Code:        in.Code,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := d.conn.ExecContext(ctx, insertProductSQL(false), p.ID, p.Code, p.Description, formatTime(now), formatTime(now))
	if err != nil {
		return internal.Product{}, classify(err)
	}
	return p, nil
}

func (d *DB) UpdateProduct(ctx context.Context, id string, in internal.ProductInput) (internal.Product, error) {
	res, err := d.conn.ExecContext(ctx, `UPDATE products SET code = ?, description = ?, updated_at = ? WHERE id = ?`,
		in.Code, in.Description, formatTime(time.Now()), id)
	if err != nil {
		return internal.Product{}, classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return internal.Product{}, internal.ErrNotFound
	}
	p, err := d.getProduct(ctx, `WHERE id = ?`, id)
	if err != nil {
		return internal.Product{}, err
	}
	if p == nil {
		return internal.Product{}, internal.ErrNotFound
	}
	return *p, nil
}

func (d *DB) DeleteProduct(ctx context.Context, id string) error {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return internal.ErrNotFound
	}
	return nil
}

func (d *DB) DeleteAllProducts(ctx context.Context) (int64, error) {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM products`)
	if err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected()
}

// FindProductByCode returns nil, nil when the code is unknown.
func (d *DB) FindProductByCode(ctx context.Context, code string) (*internal.Product, error) {
	return d.getProduct(ctx, `WHERE code = ?`, code)
}

// SearchProducts matches code or description, newest first.
func (d *DB) SearchProducts(ctx context.Context, queryUpper string, limit int) ([]internal.Product, error) {
	pattern := "%" + escapeLike(queryUpper) + "%"
	return d.queryProducts(ctx, `
SELECT `+productColumns+` FROM products
WHERE UPPER(code) LIKE ? ESCAPE '\' OR UPPER(description) LIKE ? ESCAPE '\'
ORDER BY created_at DESC, rowid DESC
LIMIT ?`, pattern, pattern, limit)
}

func (d *DB) ListProducts(ctx context.Context, offset, limit int) ([]internal.Product, error) {
	return d.queryProducts(ctx, `
SELECT `+productColumns+` FROM products
ORDER BY created_at DESC, rowid DESC
LIMIT ? OFFSET ?`, limit, offset)
}

func (d *DB) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (d *DB) getProduct(ctx context.Context, where string, args ...any) (*internal.Product, error) {
	var p internal.Product
	var createdAt, updatedAt string
	err := d.conn.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products `+where, args...).
		Scan(&p.ID, &p.Code, &p.Description, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (d *DB) queryProducts(ctx context.Context, query string, args ...any) ([]internal.Product, error) {
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []internal.Product{}
	for rows.Next() {
		var p internal.Product
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.Code, &p.Description, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	repl := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return repl.Replace(s)
}

// classify maps sqlite errors onto the catalog sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %w", internal.ErrDuplicateKey, err)
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_NOTADB:
			return fmt.Errorf("%w: %w", internal.ErrStoreUnavailable, err)
		}
		if strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %w", internal.ErrDuplicateKey, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", internal.ErrStoreUnavailable, err)
	}
	return err
}
