package memory

import (
	"context"
	"slices"

	"github.com/dyorwellness/storefront/internal/domain/affiliate"
)

var _ affiliate.Repository = (*CommissionRepository)(nil)

// CommissionRepository stores affiliate commissions keyed by ID.
type CommissionRepository struct {
	s    *Store
	inTx bool
}

func (r *CommissionRepository) Create(_ context.Context, c *affiliate.Commission) error {
	return r.s.write(r.inTx, func() error {
		cp := *c
		r.s.commissions[c.ID] = &cp
		return nil
	})
}

func (r *CommissionRepository) Get(_ context.Context, id string) (*affiliate.Commission, error) {
	var out *affiliate.Commission
	err := r.s.read(func() error {
		c, ok := r.s.commissions[id]
		if !ok {
			return affiliate.ErrNotFound
		}
		cp := *c
		out = &cp
		return nil
	})
	return out, err
}

func (r *CommissionRepository) UpdateStatus(_ context.Context, c *affiliate.Commission, prev affiliate.Status) error {
	return r.s.write(r.inTx, func() error {
		stored, ok := r.s.commissions[c.ID]
		if !ok {
			return affiliate.ErrNotFound
		}
		if stored.Status != prev {
			return affiliate.ErrConflict
		}
		cp := *stored
		cp.Status = c.Status
		cp.ApprovedAt = c.ApprovedAt
		cp.PaidAt = c.PaidAt
		cp.CancelledAt = c.CancelledAt
		r.s.commissions[c.ID] = &cp
		return nil
	})
}

func (r *CommissionRepository) List(_ context.Context, f affiliate.Filter) ([]affiliate.Commission, error) {
	var out []affiliate.Commission
	err := r.s.read(func() error {
		for _, c := range r.s.commissions {
			if f.Match(c) {
				out = append(out, *c)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b affiliate.Commission) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return paginate(out, f.Limit, f.Offset), err
}
