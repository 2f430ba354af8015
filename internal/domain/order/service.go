package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// numberAlphabet omits characters that are easily confused when read aloud.
const numberAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// NewNumber returns a human-readable order number such as DYOR-261018-7K3Q9X.
func NewNumber(prefix string, now time.Time) string {
	id := uuid.New()
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = numberAlphabet[int(id[i])%len(numberAlphabet)]
	}
	return prefix + "-" + now.UTC().Format("060102") + "-" + string(suffix)
}

// Tracked is the customer-facing view of an order.
type Tracked struct {
	Order   *Order
	History []HistoryEntry
}

// Service applies lifecycle operations to stored orders.
type Service struct {
	orders Repository
	now    func() time.Time
}

// NewService creates an order Service.
func NewService(orders Repository) *Service {
	return &Service{orders: orders, now: time.Now}
}

// Get returns the order with the given number.
func (s *Service) Get(ctx context.Context, number string) (*Order, error) {
	o, err := s.orders.Get(ctx, strings.TrimSpace(number))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// Transition validates and persists a status change requested by an
// administrator.
func (s *Service) Transition(ctx context.Context, number string, target Status, md TransitionMetadata) (*Order, error) {
	o, err := s.Get(ctx, number)
	if err != nil {
		return nil, err
	}

	prev := o.Status
	entry, err := Transition(o, target, md, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.orders.UpdateStatus(ctx, o, prev, entry); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		return nil, errors.Wrap(err, "update order status")
	}
	return o, nil
}

// UpdateTracking corrects the tracking details of a shipped order.
func (s *Service) UpdateTracking(ctx context.Context, number string, t Tracking) (*Order, error) {
	o, err := s.Get(ctx, number)
	if err != nil {
		return nil, err
	}

	entry, err := UpdateTracking(o, t, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.orders.UpdateTracking(ctx, o, entry); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		return nil, errors.Wrap(err, "update order tracking")
	}
	return o, nil
}

// History returns the status history of an order, oldest first.
func (s *Service) History(ctx context.Context, number string) ([]HistoryEntry, error) {
	o, err := s.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	h, err := s.orders.History(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "get order history")
	}
	return h, nil
}

// Track is the guest order lookup. An email mismatch is indistinguishable
// from an unknown order number.
func (s *Service) Track(ctx context.Context, number, email string) (*Tracked, error) {
	o, err := s.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(email), o.CustomerEmail) {
		return nil, ErrNotFound
	}

	h, err := s.orders.History(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "get order history")
	}
	return &Tracked{Order: o, History: h}, nil
}

// List returns orders matching f for the admin back office.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}
