// Package affiliate records and aggregates commissions owed to referrers
// whose discount codes were used at checkout.
package affiliate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dyorwellness/storefront/internal/domain/discount"
)

var (
	ErrNotAffiliateCode  = errors.New("discount code is not an affiliate code")
	ErrInvalidTransition = errors.New("invalid commission status transition")
	ErrInvalidStatus     = errors.New("invalid commission status")
	ErrNotFound          = errors.New("commission not found")
	ErrConflict          = errors.New("commission was modified concurrently")
)

// Status is the payout state of a commission.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusCancelled},
	StatusApproved: {StatusPaid, StatusCancelled},
}

// ParseStatus converts a raw string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusApproved, StatusPaid, StatusCancelled:
		return st, nil
	default:
		return "", errors.Wrapf(ErrInvalidStatus, "%q", s)
	}
}

// CanTransitionTo reports whether target is reachable from s in one step.
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// TransitionError describes a rejected commission status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// OrderRef is the slice of a completed order a commission is derived from.
type OrderRef struct {
	ID     string
	Number string
	Total  decimal.Decimal
}

// Commission is the amount owed to an affiliate for one order. The rate and
// amount are frozen when the commission is recorded.
type Commission struct {
	ID             string
	OrderID        string
	OrderNumber    string
	DiscountCodeID string
	Code           string
	AffiliateName  string
	AffiliateEmail string
	OrderTotal     decimal.Decimal
	CommissionRate decimal.Decimal
	Amount         decimal.Decimal
	Status         Status
	CreatedAt      time.Time
	ApprovedAt     *time.Time
	PaidAt         *time.Time
	CancelledAt    *time.Time
}

var hundred = decimal.NewFromInt(100)

// NewCommission derives a pending commission for order from an affiliate code.
func NewCommission(order OrderRef, code *discount.Code, now time.Time) (*Commission, error) {
	if code == nil || !code.IsAffiliate() {
		return nil, ErrNotAffiliateCode
	}
	a := code.Affiliate

	return &Commission{
		ID:             uuid.New().String(),
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		DiscountCodeID: code.ID,
		Code:           code.Code,
		AffiliateName:  a.Name,
		AffiliateEmail: a.Email,
		OrderTotal:     order.Total,
		CommissionRate: a.CommissionRate,
		Amount:         order.Total.Mul(a.CommissionRate).Div(hundred).Round(2),
		Status:         StatusPending,
		CreatedAt:      now,
	}, nil
}

// Advance moves the commission to target, stamping the matching timestamp.
// The commission is unchanged when the edge is not allowed.
func (c *Commission) Advance(target Status, now time.Time) error {
	if !c.Status.CanTransitionTo(target) {
		return &TransitionError{From: c.Status, To: target}
	}

	at := now
	switch target {
	case StatusApproved:
		c.ApprovedAt = &at
	case StatusPaid:
		c.PaidAt = &at
	case StatusCancelled:
		c.CancelledAt = &at
	}
	c.Status = target
	return nil
}

// Summary holds commission totals per status.
type Summary struct {
	Pending   decimal.Decimal
	Approved  decimal.Decimal
	Paid      decimal.Decimal
	Cancelled decimal.Decimal
	Count     int
}

// Aggregate sums commission amounts by status. An empty input yields zeros.
func Aggregate(commissions []Commission) Summary {
	s := Summary{
		Pending:   decimal.Zero,
		Approved:  decimal.Zero,
		Paid:      decimal.Zero,
		Cancelled: decimal.Zero,
	}
	for _, c := range commissions {
		switch c.Status {
		case StatusPending:
			s.Pending = s.Pending.Add(c.Amount)
		case StatusApproved:
			s.Approved = s.Approved.Add(c.Amount)
		case StatusPaid:
			s.Paid = s.Paid.Add(c.Amount)
		case StatusCancelled:
			s.Cancelled = s.Cancelled.Add(c.Amount)
		}
		s.Count++
	}
	return s
}

// Filter narrows commission listings. Query is a case-insensitive substring
// matched against affiliate name, affiliate email and order number.
type Filter struct {
	Status Status
	Code   string
	Query  string
	Limit  int
	Offset int
}

// Match reports whether c satisfies f, ignoring pagination.
func (f Filter) Match(c *Commission) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Code != "" && !strings.EqualFold(c.Code, f.Code) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(c.AffiliateName), q) ||
			strings.Contains(strings.ToLower(c.AffiliateEmail), q) ||
			strings.Contains(strings.ToLower(c.OrderNumber), q)
	}
	return true
}

// Repository provides persistence for commissions.
type Repository interface {
	Create(ctx context.Context, c *Commission) error
	// Get returns ErrNotFound when no commission has the id.
	Get(ctx context.Context, id string) (*Commission, error)
	// UpdateStatus persists c only while the stored status still equals
	// prev. Returns ErrConflict otherwise.
	UpdateStatus(ctx context.Context, c *Commission, prev Status) error
	// List returns commissions matching f, newest first. A zero Limit
	// means no limit.
	List(ctx context.Context, f Filter) ([]Commission, error)
}
