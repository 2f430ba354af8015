package affiliate

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/dyorwellness/storefront/internal/domain/discount"
)

// Service tracks affiliate commissions.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a commission Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithRepository returns a copy of the service bound to repo.
func (s *Service) WithRepository(repo Repository) *Service {
	return &Service{repo: repo, now: s.now}
}

// Record creates the commission owed for order through code.
func (s *Service) Record(ctx context.Context, order OrderRef, code *discount.Code) (*Commission, error) {
	c, err := NewCommission(order, code, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create commission")
	}
	return c, nil
}

// Advance moves a stored commission to target.
func (s *Service) Advance(ctx context.Context, id string, target Status) (*Commission, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get commission")
	}

	prev := c.Status
	if err := c.Advance(target, s.now()); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, c, prev); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		return nil, errors.Wrap(err, "update commission status")
	}
	return c, nil
}

// List returns a page of commissions matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Commission, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	out, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list commissions")
	}
	return out, nil
}

// Summary aggregates every commission matching f. Pagination is ignored.
func (s *Service) Summary(ctx context.Context, f Filter) (Summary, error) {
	f.Limit, f.Offset = 0, 0
	all, err := s.repo.List(ctx, f)
	if err != nil {
		return Summary{}, errors.Wrap(err, "list commissions")
	}
	return Aggregate(all), nil
}
