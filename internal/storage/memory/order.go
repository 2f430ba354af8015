package memory

import (
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/dyorwellness/storefront/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository stores orders keyed by order number.
type OrderRepository struct {
	s    *Store
	inTx bool
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	return &cp
}

func (r *OrderRepository) Create(_ context.Context, o *order.Order, first order.HistoryEntry) error {
	return r.s.write(r.inTx, func() error {
		if _, ok := r.s.orders[o.Number]; ok {
			return errors.Errorf("order %s already exists", o.Number)
		}
		r.s.orders[o.Number] = cloneOrder(o)
		r.s.history[o.ID] = []order.HistoryEntry{first}
		return nil
	})
}

func (r *OrderRepository) Get(_ context.Context, number string) (*order.Order, error) {
	var out *order.Order
	err := r.s.read(func() error {
		o, ok := r.s.orders[number]
		if !ok {
			return order.ErrNotFound
		}
		out = cloneOrder(o)
		return nil
	})
	return out, err
}

func (r *OrderRepository) UpdateStatus(_ context.Context, o *order.Order, prev order.Status, entry order.HistoryEntry) error {
	return r.s.write(r.inTx, func() error {
		stored, ok := r.s.orders[o.Number]
		if !ok {
			return order.ErrNotFound
		}
		if stored.Status != prev {
			return order.ErrConflict
		}
		r.s.orders[o.Number] = cloneOrder(o)
		r.s.history[o.ID] = append(r.s.history[o.ID], entry)
		return nil
	})
}

func (r *OrderRepository) UpdateTracking(_ context.Context, o *order.Order, entry order.HistoryEntry) error {
	return r.s.write(r.inTx, func() error {
		stored, ok := r.s.orders[o.Number]
		if !ok {
			return order.ErrNotFound
		}
		if stored.Status != o.Status {
			return order.ErrConflict
		}
		r.s.orders[o.Number] = cloneOrder(o)
		r.s.history[o.ID] = append(r.s.history[o.ID], entry)
		return nil
	})
}

func (r *OrderRepository) History(_ context.Context, orderID string) ([]order.HistoryEntry, error) {
	var out []order.HistoryEntry
	err := r.s.read(func() error {
		out = slices.Clone(r.s.history[orderID])
		return nil
	})
	return out, err
}

func (r *OrderRepository) List(_ context.Context, f order.ListFilter) ([]order.Order, error) {
	var out []order.Order
	err := r.s.read(func() error {
		for _, o := range r.s.orders {
			if f.Status != "" && o.Status != f.Status {
				continue
			}
			out = append(out, *cloneOrder(o))
		}
		return nil
	})
	slices.SortFunc(out, func(a, b order.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return paginate(out, f.Limit, f.Offset), err
}
