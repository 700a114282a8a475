package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"stockcount/internal"
)

const productColumns = `id, code, description, created_at, updated_at`

func (s *Store) ExistsByKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM products WHERE code = $1)`, key)
	if err != nil {
		return false, classify("exists by key", err)
	}
	return exists, nil
}

func (s *Store) ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	out := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT code FROM products WHERE code IN (?)`, keys)
	if err != nil {
		return nil, fmt.Errorf("build existing keys query: %w", err)
	}

	var codes []string
	if err := s.db.SelectContext(ctx, &codes, s.db.Rebind(query), args...); err != nil {
		return nil, classify("existing keys", err)
	}
	for _, code := range codes {
		out[code] = true
	}
	return out, nil
}

// InsertProducts writes the batch as one statement, so it either fully succeeds or fails.
func (s *Store) InsertProducts(ctx context.Context, products []internal.ProductInput) error {
	return s.writeProducts(ctx, "insert products", products, false)
}

func (s *Store) UpsertProducts(ctx context.Context, products []internal.ProductInput) error {
	return s.writeProducts(ctx, "upsert products", products, true)
}

func (s *Store) InsertProduct(ctx context.Context, product internal.ProductInput) error {
	return s.writeProducts(ctx, "insert product", []internal.ProductInput{product}, false)
}

func (s *Store) UpsertProduct(ctx context.Context, product internal.ProductInput) error {
	return s.writeProducts(ctx, "upsert product", []internal.ProductInput{product}, true)
}

func (s *Store) writeProducts(ctx context.Context, op string, products []internal.ProductInput, upsert bool) error {
	if len(products) == 0 {
		return nil
	}
	query, args := buildProductInsert(products, upsert)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return classify(op, err)
	}
	return nil
}

func buildProductInsert(products []internal.ProductInput, upsert bool) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO products (id, code, description) VALUES `)
	args := make([]any, 0, len(products)*3)
	for i, p := range products {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 3
		fmt.Fprintf(&b, "($%d, $%d, $%d)", n+1, n+2, n+3)
		args = append(args, uuid.NewString(), p.Code, p.Description)
	}
	if upsert {
		b.WriteString(` ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description, updated_at = now()`)
	}
	return b.String(), args
}

func (s *Store) CreateProduct(ctx context.Context, in internal.ProductInput) (internal.Product, error) {
	var p internal.Product
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO products (id, code, description)
		VALUES ($1, $2, $3)
		RETURNING `+productColumns,
		uuid.NewString(), in.Code, in.Description,
	).StructScan(&p)
	if err != nil {
		return internal.Product{}, classify("create product", err)
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, in internal.ProductInput) (internal.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return internal.Product{}, internal.ErrNotFound
	}
	var p internal.Product
	err := s.db.QueryRowxContext(ctx, `
		UPDATE products SET code = $1, description = $2, updated_at = now()
		WHERE id = $3
		RETURNING `+productColumns,
		in.Code, in.Description, id,
	).StructScan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.Product{}, internal.ErrNotFound
	}
	if err != nil {
		return internal.Product{}, classify("update product", err)
	}
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return internal.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return classify("delete product", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return internal.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAllProducts(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products`)
	if err != nil {
		return 0, classify("delete all products", err)
	}
	return res.RowsAffected()
}

func (s *Store) FindProductByCode(ctx context.Context, code string) (*internal.Product, error) {
	var p internal.Product
	err := s.db.GetContext(ctx, &p, `SELECT `+productColumns+` FROM products WHERE code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find product", err)
	}
	return &p, nil
}

// SearchProducts is a case-insensitive substring match on code or description, newest first.
func (s *Store) SearchProducts(ctx context.Context, queryUpper string, limit int) ([]internal.Product, error) {
	pattern := "%" + escapeLike(queryUpper) + "%"
	out := []internal.Product{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+productColumns+`
		FROM products
		WHERE code ILIKE $1 OR description ILIKE $1
		ORDER BY created_at DESC, code ASC
		LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, classify("search products", err)
	}
	return out, nil
}

func (s *Store) ListProducts(ctx context.Context, offset, limit int) ([]internal.Product, error) {
	out := []internal.Product{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY created_at DESC, code ASC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, classify("list products", err)
	}
	return out, nil
}

func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM products`); err != nil {
		return 0, classify("count products", err)
	}
	return n, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
