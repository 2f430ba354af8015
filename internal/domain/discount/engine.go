package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Applied is a validated code together with the discount it grants.
type Applied struct {
	Code   *Code
	Amount decimal.Decimal
}

// Engine validates, prices and redeems discount codes held in a Repository.
type Engine struct {
	repo Repository
	now  func() time.Time
}

// NewEngine creates an Engine backed by the given Repository.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo, now: time.Now}
}

// WithRepository returns a copy of the engine bound to repo, sharing the
// clock. Used to run redemptions inside a storage transaction.
func (e *Engine) WithRepository(repo Repository) *Engine {
	return &Engine{repo: repo, now: e.now}
}

// Validate looks up code and checks it against subtotal.
func (e *Engine) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Code, error) {
	c, err := e.repo.FindByCode(ctx, Normalize(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup discount code")
	}
	if err := c.Validate(subtotal, e.now()); err != nil {
		return nil, err
	}
	return c, nil
}

// Quote validates code and computes its discount without consuming a use.
func (e *Engine) Quote(ctx context.Context, code string, subtotal decimal.Decimal) (*Applied, error) {
	c, err := e.Validate(ctx, code, subtotal)
	if err != nil {
		return nil, err
	}
	return &Applied{Code: c, Amount: Calculate(c, subtotal)}, nil
}

// Redeem validates code, computes its discount and consumes exactly one use.
// The increment is conditional in storage, so concurrent redemptions of a
// nearly exhausted code cannot both succeed.
func (e *Engine) Redeem(ctx context.Context, code string, subtotal decimal.Decimal) (*Applied, error) {
	applied, err := e.Quote(ctx, code, subtotal)
	if err != nil {
		return nil, err
	}

	if err := e.repo.IncrementUses(ctx, applied.Code.ID); err != nil {
		if errors.Is(err, ErrUsageExceeded) {
			return nil, ErrUsageExceeded
		}
		return nil, errors.Wrap(err, "increment discount uses")
	}
	applied.Code.CurrentUses++

	return applied, nil
}

// Create validates and stores a new code.
func (e *Engine) Create(ctx context.Context, c *Code) error {
	c.Code = Normalize(c.Code)
	if err := c.Check(); err != nil {
		return err
	}

	now := e.now()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CurrentUses = 0
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := e.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return ErrDuplicate
		}
		return errors.Wrap(err, "create discount code")
	}
	return nil
}

// Update replaces the editable attributes of an existing code. The usage
// counter is never taken from the caller.
func (e *Engine) Update(ctx context.Context, c *Code) error {
	c.Code = Normalize(c.Code)
	if err := c.Check(); err != nil {
		return err
	}

	existing, err := e.repo.FindByCode(ctx, c.Code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrap(err, "lookup discount code")
	}

	c.ID = existing.ID
	c.CurrentUses = existing.CurrentUses
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = e.now()

	if err := e.repo.Update(ctx, c); err != nil {
		return errors.Wrap(err, "update discount code")
	}
	return nil
}

// Deactivate switches a code off. Codes are never deleted because orders
// keep referring to them.
func (e *Engine) Deactivate(ctx context.Context, code string) error {
	if err := e.repo.SetActive(ctx, Normalize(code), false); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrap(err, "deactivate discount code")
	}
	return nil
}

// List returns codes matching f.
func (e *Engine) List(ctx context.Context, f ListFilter) ([]Code, error) {
	codes, err := e.repo.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list discount codes")
	}
	return codes, nil
}
