package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockcount/internal"
)

type indexEntry struct {
	product internal.Product
	seq     int64
}

// MemoryStore is an in-process catalog indexed by id and by code. It backs
// CATALOG_BACKEND=memory and keeps tests free of a database.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*indexEntry
	byCode map[string]*indexEntry
	seq    int64
	down   bool

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   map[string]*indexEntry{},
		byCode: map[string]*indexEntry{},
		now:    time.Now,
	}
}

// SetUnavailable makes every call fail with internal.ErrStoreUnavailable.
func (m *MemoryStore) SetUnavailable(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

func (m *MemoryStore) unavailable(op string) error {
	if m.down {
		return fmt.Errorf("%s: %w", op, internal.ErrStoreUnavailable)
	}
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unavailable("ping")
}

func (m *MemoryStore) ExistsByKey(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.unavailable("exists by key"); err != nil {
		return false, err
	}
	_, ok := m.byCode[key]
	return ok, nil
}

func (m *MemoryStore) ExistingKeys(_ context.Context, keys []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.unavailable("existing keys"); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, ok := m.byCode[k]; ok {
			out[k] = true
		}
	}
	return out, nil
}

// InsertProducts is all-or-nothing: one taken code rejects the whole batch.
func (m *MemoryStore) InsertProducts(_ context.Context, products []internal.ProductInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable("insert products"); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		if _, ok := m.byCode[p.Code]; ok {
			return fmt.Errorf("insert products: %w: code %s", internal.ErrDuplicateKey, p.Code)
		}
		if _, ok := seen[p.Code]; ok {
			return fmt.Errorf("insert products: %w: code %s", internal.ErrDuplicateKey, p.Code)
		}
		seen[p.Code] = struct{}{}
	}
	for _, p := range products {
		m.add(p)
	}
	return nil
}

func (m *MemoryStore) UpsertProducts(_ context.Context, products []internal.ProductInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable("upsert products"); err != nil {
		return err
	}
	for _, p := range products {
		m.upsert(p)
	}
	return nil
}

func (m *MemoryStore) InsertProduct(ctx context.Context, product internal.ProductInput) error {
	return m.InsertProducts(ctx, []internal.ProductInput{product})
}

func (m *MemoryStore) UpsertProduct(ctx context.Context, product internal.ProductInput) error {
	return m.UpsertProducts(ctx, []internal.ProductInput{product})
}

func (m *MemoryStore) add(in internal.ProductInput) internal.Product {
	now := m.now().UTC()
	m.seq++
	e := &indexEntry{
		product: internal.Product{
			ID:          uuid.NewString(),
			Code:        in.Code,
			Description: in.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		seq: m.seq,
	}
	m.byID[e.product.ID] = e
	m.byCode[e.product.Code] = e
	return e.product
}

func (m *MemoryStore) upsert(in internal.ProductInput) {
	if e, ok := m.byCode[in.Code]; ok {
		e.product.Description = in.Description
		e.product.UpdatedAt = m.now().UTC()
		return
	}
	m.add(in)
}

func (m *MemoryStore) CreateProduct(_ context.Context, in internal.ProductInput) (internal.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable("create product"); err != nil {
		return internal.Product{}, err
	}
	if _, ok := m.byCode[in.Code]; ok {
		return internal.Product{}, fmt.Errorf("create product: %w: code %s", internal.ErrDuplicateKey, in.Code)
	}
	return m.add(in), nil
}

func (m *MemoryStore) UpdateProduct(_ context.Context, id string, in internal.ProductInput) (internal.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable("update product"); err != nil {
		return internal.Product{}, err
	}
	e, ok := m.byID[id]
	if !ok {
		return internal.Product{}, internal.ErrNotFound
	}
	if other, ok := m.byCode[in.Code]; ok && other != e {
		return internal.Product{}, fmt.Errorf("update product: %w: code %s", internal.ErrDuplicateKey, in.Code)
	}
	delete(m.byCode, e.product.Code)
	e.product.Code = in.Code
	e.product.Description = in.Description
	e.product.UpdatedAt = m.now().UTC()
	m.byCode[e.product.Code] = e
	return e.product, nil
}

func (m *MemoryStore) DeleteProduct(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable("delete product"); err != nil {
		return err
	}
	e, ok := m.byID[id]
	if !ok {
		return internal.ErrNotFound
	}
	delete(m.byID, id)
	delete(m.byCode, e.product.Code)
	return nil
}

func (m *MemoryStore) DeleteAllProducts(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable("delete all products"); err != nil {
		return 0, err
	}
	n := int64(len(m.byID))
	m.byID = map[string]*indexEntry{}
	m.byCode = map[string]*indexEntry{}
	return n, nil
}

func (m *MemoryStore) FindProductByCode(_ context.Context, code string) (*internal.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.unavailable("find product"); err != nil {
		return nil, err
	}
	e, ok := m.byCode[code]
	if !ok {
		return nil, nil
	}
	p := e.product
	return &p, nil
}

func (m *MemoryStore) SearchProducts(_ context.Context, queryUpper string, limit int) ([]internal.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.unavailable("search products"); err != nil {
		return nil, err
	}
	matches := make([]*indexEntry, 0)
	for _, e := range m.byID {
		if strings.Contains(strings.ToUpper(e.product.Code), queryUpper) ||
			strings.Contains(strings.ToUpper(e.product.Description), queryUpper) {
			matches = append(matches, e)
		}
	}
	return page(matches, 0, limit), nil
}

func (m *MemoryStore) ListProducts(_ context.Context, offset, limit int) ([]internal.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.unavailable("list products"); err != nil {
		return nil, err
	}
	all := make([]*indexEntry, 0, len(m.byID))
	for _, e := range m.byID {
		all = append(all, e)
	}
	return page(all, offset, limit), nil
}

func (m *MemoryStore) CountProducts(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.unavailable("count products"); err != nil {
		return 0, err
	}
	return len(m.byID), nil
}

// page orders newest first, later insertions winning ties, then slices.
func page(entries []*indexEntry, offset, limit int) []internal.Product {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.product.CreatedAt.Equal(b.product.CreatedAt) {
			return a.product.CreatedAt.After(b.product.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := []internal.Product{}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(entries) {
		return out
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	for _, e := range entries {
		out = append(out, e.product)
	}
	return out
}
