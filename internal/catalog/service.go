package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stockcount/internal"
	"stockcount/internal/logger"
	"stockcount/internal/searchcache"
	"stockcount/internal/util"
)

const DefaultPageSize = 100

var ErrInvalidProduct = errors.New("code and description are required")

// Service is the catalog management surface used by the API and the CLI.
// It owns the search cache of its caller and resets it on every mutation.
type Service struct {
	store    Store
	cache    *searchcache.Cache
	log      *logger.Logger
	pageSize int
}

func NewService(store Store, cache *searchcache.Cache, log *logger.Logger, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if cache == nil {
		cache = searchcache.New(store, searchcache.Options{})
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{store: store, cache: cache, log: log, pageSize: pageSize}
}

func (s *Service) Store() Store { return s.store }

func (s *Service) Cache() *searchcache.Cache { return s.cache }

func normalizeInput(in internal.ProductInput) (internal.ProductInput, error) {
	out := internal.ProductInput{
		Code:        util.NormalizeKey(in.Code),
		Description: util.NormalizeDescription(in.Description),
	}
	if out.Code == "" || out.Description == "" {
		return internal.ProductInput{}, ErrInvalidProduct
	}
	return out, nil
}

func (s *Service) Add(ctx context.Context, in internal.ProductInput) (internal.Product, error) {
	norm, err := normalizeInput(in)
	if err != nil {
		return internal.Product{}, err
	}
	p, err := s.store.CreateProduct(ctx, norm)
	if err != nil {
		if errors.Is(err, internal.ErrDuplicateKey) {
			return internal.Product{}, fmt.Errorf("code already exists: %w", internal.ErrDuplicateKey)
		}
		return internal.Product{}, err
	}
	s.cache.Reset()
	s.log.WithFields(logger.Fields{"id": p.ID, "code": p.Code}).Info("product added")
	return p, nil
}

func (s *Service) Update(ctx context.Context, id string, in internal.ProductInput) (internal.Product, error) {
	norm, err := normalizeInput(in)
	if err != nil {
		return internal.Product{}, err
	}
	p, err := s.store.UpdateProduct(ctx, strings.TrimSpace(id), norm)
	if err != nil {
		if errors.Is(err, internal.ErrDuplicateKey) {
			return internal.Product{}, fmt.Errorf("code already exists: %w", internal.ErrDuplicateKey)
		}
		return internal.Product{}, err
	}
	s.cache.Reset()
	return p, nil
}

func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.store.DeleteProduct(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.cache.Reset()
	return nil
}

func (s *Service) ClearAll(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAllProducts(ctx)
	if err != nil {
		return 0, err
	}
	s.cache.Reset()
	s.log.WithField("deleted", n).Warn("catalog cleared")
	return n, nil
}

// FindByCode returns nil, nil when no product has the code.
func (s *Service) FindByCode(ctx context.Context, code string) (*internal.Product, error) {
	code = util.NormalizeKey(code)
	if code == "" {
		return nil, nil
	}
	return s.store.FindProductByCode(ctx, code)
}

// Page returns a 1-based page of the catalog, newest first.
func (s *Service) Page(ctx context.Context, page int) (internal.ProductPage, error) {
	if page < 1 {
		page = 1
	}
	total, err := s.store.CountProducts(ctx)
	if err != nil {
		return internal.ProductPage{}, err
	}
	items, err := s.store.ListProducts(ctx, (page-1)*s.pageSize, s.pageSize)
	if err != nil {
		return internal.ProductPage{}, err
	}
	return internal.ProductPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   s.pageSize,
		TotalPages: (total + s.pageSize - 1) / s.pageSize,
	}, nil
}

func (s *Service) Search(ctx context.Context, query string, limit int) ([]internal.Product, error) {
	return s.cache.Search(ctx, query, limit)
}

// Imported is called after a catalog import so cached searches see the new rows.
func (s *Service) Imported() {
	s.cache.Reset()
}
