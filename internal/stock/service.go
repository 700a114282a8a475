// Package stock records counted items and exports the count for the ERP.
package stock

import (
	"context"
	"errors"
	"strings"
	"time"

	"stockcount/internal"
	"stockcount/internal/logger"
	"stockcount/internal/util"
)

var (
	ErrInvalidBarcode  = errors.New("barcode is required")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrEmptyCount      = errors.New("no items counted")
)

type Store interface {
	AddStockItem(ctx context.Context, barcode string, quantity int, at time.Time) (internal.StockItem, error)
	UpdateStockQuantity(ctx context.Context, id string, quantity int) error
	DeleteStockItem(ctx context.Context, id string) error
	DeleteAllStockItems(ctx context.Context) (int64, error)
	ListStockItems(ctx context.Context) ([]internal.StockItem, error)
}

type ProductLookup interface {
	FindProductByCode(ctx context.Context, code string) (*internal.Product, error)
}

// ScanResult is a recorded item plus the catalog product for its barcode, if any.
type ScanResult struct {
	Item    internal.StockItem `json:"item"`
	Product *internal.Product  `json:"product,omitempty"`
}

type Service struct {
	store    Store
	products ProductLookup
	log      *logger.Logger
	loc      *time.Location
	now      func() time.Time
}

func NewService(store Store, products ProductLookup, loc *time.Location, log *logger.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{store: store, products: products, log: log, loc: loc, now: time.Now}
}

// Add records quantity units of barcode. A zero quantity counts as one.
func (s *Service) Add(ctx context.Context, barcode string, quantity int) (ScanResult, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return ScanResult{}, ErrInvalidBarcode
	}
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return ScanResult{}, ErrInvalidQuantity
	}

	item, err := s.store.AddStockItem(ctx, barcode, quantity, s.now())
	if err != nil {
		return ScanResult{}, err
	}
	res := ScanResult{Item: item}

	if s.products != nil {
		p, err := s.products.FindProductByCode(ctx, util.NormalizeKey(barcode))
		if err != nil {
			s.log.WithError(err).WithField("barcode", barcode).Warn("product lookup failed")
		}
		res.Product = p
	}

	s.log.WithFields(logger.Fields{"barcode": barcode, "quantity": quantity, "known": res.Product != nil}).Info("item counted")
	return res, nil
}

// UpdateQuantity sets the quantity of an item; zero or less removes it.
func (s *Service) UpdateQuantity(ctx context.Context, id string, quantity int) (removed bool, err error) {
	if quantity <= 0 {
		return true, s.store.DeleteStockItem(ctx, id)
	}
	return false, s.store.UpdateStockQuantity(ctx, id, quantity)
}

func (s *Service) Remove(ctx context.Context, id string) error {
	return s.store.DeleteStockItem(ctx, id)
}

func (s *Service) Clear(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAllStockItems(ctx)
	if err != nil {
		return 0, err
	}
	s.log.WithField("deleted", n).Info("stock count cleared")
	return n, nil
}

// List returns counted items, most recent first.
func (s *Service) List(ctx context.Context) ([]internal.StockItem, error) {
	return s.store.ListStockItems(ctx)
}

func TotalQuantity(items []internal.StockItem) int {
	total := 0
	for _, it := range items {
		total += it.Quantity
	}
	return total
}
