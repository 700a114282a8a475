package catalog

import (
	"context"

	"stockcount/internal"
)

// Store is the catalog persistence contract. storage.DB, postgres.Store and
// MemoryStore all satisfy it.
type Store interface {
	Ping(ctx context.Context) error

	ExistsByKey(ctx context.Context, key string) (bool, error)
	ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error)
	InsertProducts(ctx context.Context, products []internal.ProductInput) error
	UpsertProducts(ctx context.Context, products []internal.ProductInput) error
	InsertProduct(ctx context.Context, product internal.ProductInput) error
	UpsertProduct(ctx context.Context, product internal.ProductInput) error

	CreateProduct(ctx context.Context, in internal.ProductInput) (internal.Product, error)
	UpdateProduct(ctx context.Context, id string, in internal.ProductInput) (internal.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	DeleteAllProducts(ctx context.Context) (int64, error)
	FindProductByCode(ctx context.Context, code string) (*internal.Product, error)
	SearchProducts(ctx context.Context, queryUpper string, limit int) ([]internal.Product, error)
	ListProducts(ctx context.Context, offset, limit int) ([]internal.Product, error)
	CountProducts(ctx context.Context) (int, error)
}

// MetadataStore keeps small key/value markers such as the last feed sync.
type MetadataStore interface {
	GetMetadata(key string) (*string, error)
	SetMetadata(key, value string) error
}
