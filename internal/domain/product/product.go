package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a research peptide listed in the catalog.
type Product struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	// Purity is the HPLC purity as a percentage, e.g. 99.1.
	Purity  decimal.Decimal
	SizeMg  int
	InStock bool
	Image   string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	// GetByIDs returns the products that exist among ids, in no particular
	// order. Missing ids are silently skipped.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
