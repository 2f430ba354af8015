// Package seed holds the demo catalog, discount codes and admin key used to
// bootstrap a fresh storefront.
package seed

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/dyorwellness/storefront/internal/domain/auth"
	"github.com/dyorwellness/storefront/internal/domain/discount"
	"github.com/dyorwellness/storefront/internal/domain/product"
)

// ProductWriter stores catalog entries, replacing existing ones by ID.
type ProductWriter interface {
	Upsert(ctx context.Context, p product.Product) error
}

// Target is where seed data is written.
type Target struct {
	Products  ProductWriter
	Discounts *discount.Engine
	APIKeys   auth.Repository
}

// AdminKey describes the admin API key to provision. An empty Key skips it.
type AdminKey struct {
	Key    string
	Pepper []byte
}

// Result counts what Apply wrote.
type Result struct {
	Products     int
	CodesCreated int
	CodesSkipped int
	AdminKey     bool
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Catalog returns the demo peptide catalog.
func Catalog() []product.Product {
	return []product.Product{
		{ID: "bpc-157", Slug: "bpc-157-5mg", Name: "BPC-157", Description: "Body protection compound, lyophilized powder.", Price: d("49.99"), Category: "Recovery", Purity: d("99.2"), SizeMg: 5, InStock: true, Image: "/images/bpc-157.webp"},
		{ID: "tb-500", Slug: "tb-500-5mg", Name: "TB-500", Description: "Thymosin beta-4 fragment, lyophilized powder.", Price: d("54.99"), Category: "Recovery", Purity: d("98.9"), SizeMg: 5, InStock: true, Image: "/images/tb-500.webp"},
		{ID: "ghk-cu", Slug: "ghk-cu-50mg", Name: "GHK-Cu", Description: "Copper tripeptide complex.", Price: d("39.00"), Category: "Skin", Purity: d("99.0"), SizeMg: 50, InStock: true, Image: "/images/ghk-cu.webp"},
		{ID: "ipamorelin", Slug: "ipamorelin-5mg", Name: "Ipamorelin", Description: "Selective growth hormone secretagogue.", Price: d("44.50"), Category: "Growth", Purity: d("99.1"), SizeMg: 5, InStock: true, Image: "/images/ipamorelin.webp"},
		{ID: "cjc-1295", Slug: "cjc-1295-2mg", Name: "CJC-1295 (no DAC)", Description: "Modified GRF 1-29.", Price: d("42.00"), Category: "Growth", Purity: d("98.7"), SizeMg: 2, InStock: false, Image: "/images/cjc-1295.webp"},
		{ID: "semax", Slug: "semax-10mg", Name: "Semax", Description: "ACTH 4-10 analogue.", Price: d("36.00"), Category: "Cognitive", Purity: d("99.3"), SizeMg: 10, InStock: true, Image: "/images/semax.webp"},
	}
}

// Codes returns the demo discount codes, including one affiliate code.
func Codes() []discount.Code {
	welcomeUses := 500
	return []discount.Code{
		{Code: "WELCOME10", Kind: discount.KindPercentage, Value: d("10"), MaxUses: &welcomeUses, Active: true},
		{Code: "SAVE20", Kind: discount.KindFixed, Value: d("20"), MinOrderAmount: d("100"), Active: true},
		{
			Code: "LABRAT", Kind: discount.KindPercentage, Value: d("5"), Active: true,
			Affiliate: &discount.Affiliate{Name: "Lab Rat Reviews", Email: "partners@labrat.example", CommissionRate: d("10")},
		},
	}
}

// Apply upserts the catalog, creates the demo codes and provisions key.
// Codes that already exist are left untouched so repeated runs keep their
// usage counters.
func Apply(ctx context.Context, t Target, key AdminKey) (Result, error) {
	var res Result
	for _, p := range Catalog() {
		if err := t.Products.Upsert(ctx, p); err != nil {
			return res, errors.Wrapf(err, "upsert product %s", p.ID)
		}
		res.Products++
	}

	for _, c := range Codes() {
		err := t.Discounts.Create(ctx, &c)
		switch {
		case errors.Is(err, discount.ErrDuplicate):
			res.CodesSkipped++
		case err != nil:
			return res, errors.Wrapf(err, "create code %s", c.Code)
		default:
			res.CodesCreated++
		}
	}

	if key.Key == "" {
		return res, nil
	}
	if err := t.APIKeys.Create(ctx, &auth.APIKeyInfo{
		ID:      "admin",
		KeyHash: auth.HashKey(key.Pepper, key.Key),
		Name:    "Default admin key",
		Scopes:  []string{auth.ScopeAdmin},
	}); err != nil {
		return res, errors.Wrap(err, "create admin key")
	}
	res.AdminKey = true
	return res, nil
}
