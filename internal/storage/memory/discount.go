package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/dyorwellness/storefront/internal/domain/discount"
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository stores discount codes keyed by their normalized code.
type DiscountRepository struct {
	s    *Store
	inTx bool
}

func (r *DiscountRepository) FindByCode(_ context.Context, code string) (*discount.Code, error) {
	var out *discount.Code
	err := r.s.read(func() error {
		c, ok := r.s.codes[discount.Normalize(code)]
		if !ok {
			return discount.ErrNotFound
		}
		cp := *c
		out = &cp
		return nil
	})
	return out, err
}

func (r *DiscountRepository) IncrementUses(_ context.Context, id string) error {
	return r.s.write(r.inTx, func() error {
		for _, c := range r.s.codes {
			if c.ID != id {
				continue
			}
			if c.MaxUses != nil && c.CurrentUses >= *c.MaxUses {
				return discount.ErrUsageExceeded
			}
			c.CurrentUses++
			return nil
		}
		return discount.ErrNotFound
	})
}

func (r *DiscountRepository) Create(_ context.Context, c *discount.Code) error {
	return r.s.write(r.inTx, func() error {
		key := discount.Normalize(c.Code)
		if _, ok := r.s.codes[key]; ok {
			return discount.ErrDuplicate
		}
		cp := *c
		r.s.codes[key] = &cp
		return nil
	})
}

func (r *DiscountRepository) Update(_ context.Context, c *discount.Code) error {
	return r.s.write(r.inTx, func() error {
		key := discount.Normalize(c.Code)
		existing, ok := r.s.codes[key]
		if !ok {
			return discount.ErrNotFound
		}
		cp := *c
		cp.CurrentUses = existing.CurrentUses
		r.s.codes[key] = &cp
		return nil
	})
}

func (r *DiscountRepository) SetActive(_ context.Context, code string, active bool) error {
	return r.s.write(r.inTx, func() error {
		c, ok := r.s.codes[discount.Normalize(code)]
		if !ok {
			return discount.ErrNotFound
		}
		cp := *c
		cp.Active = active
		r.s.codes[cp.Code] = &cp
		return nil
	})
}

func (r *DiscountRepository) List(_ context.Context, f discount.ListFilter) ([]discount.Code, error) {
	var out []discount.Code
	err := r.s.read(func() error {
		for _, c := range r.s.codes {
			if f.ActiveOnly && !c.Active {
				continue
			}
			if f.AffiliateOnly && !c.IsAffiliate() {
				continue
			}
			out = append(out, *c)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b discount.Code) int {
		return strings.Compare(a.Code, b.Code)
	})
	return paginate(out, f.Limit, f.Offset), err
}
