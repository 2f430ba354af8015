package discount

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindPercentage takes a percentage of the subtotal.
	KindPercentage Kind = "percentage"
	// KindFixed takes a fixed amount, capped at the subtotal.
	KindFixed Kind = "fixed"
)

// ParseKind converts a raw string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPercentage, KindFixed:
		return k, nil
	default:
		return "", errors.Errorf("unknown discount kind %q", s)
	}
}

var (
	// ErrNotFound is returned when no code matches the lookup.
	ErrNotFound = errors.New("discount code not found")
	// ErrInactive is returned for codes switched off by an administrator.
	ErrInactive = errors.New("discount code is inactive")
	// ErrExpired is returned when the code's expiration time has passed.
	ErrExpired = errors.New("discount code expired")
	// ErrUsageExceeded is returned when a code has exhausted its allowed uses.
	ErrUsageExceeded = errors.New("discount code usage limit reached")
	// ErrBelowMinimum is returned when the subtotal is below the code's minimum order amount.
	ErrBelowMinimum = errors.New("order subtotal below discount minimum")
	// ErrDuplicate is returned when creating a code that already exists.
	ErrDuplicate = errors.New("discount code already exists")
)

// InvalidCodeError reports a field that breaks a Code invariant.
type InvalidCodeError struct {
	Field  string
	Reason string
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid discount code: %s %s", e.Field, e.Reason)
}

// Affiliate identifies the referrer credited when an affiliate code is used.
type Affiliate struct {
	Name  string
	Email string
	// CommissionRate is a percentage of the order total.
	CommissionRate decimal.Decimal
}

// Code is a redeemable discount code.
type Code struct {
	ID             string
	Code           string
	Kind           Kind
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	// MaxUses is nil for unlimited codes.
	MaxUses     *int
	CurrentUses int
	Active      bool
	ExpiresAt   *time.Time
	// Affiliate is nil unless the code credits a referrer.
	Affiliate *Affiliate
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAffiliate reports whether redeeming the code earns a commission.
func (c *Code) IsAffiliate() bool {
	return c.Affiliate != nil
}

// Normalize canonicalizes a user supplied code for storage and lookup.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var hundred = decimal.NewFromInt(100)

// Check verifies the invariants an administrator must satisfy when creating
// or editing a code.
func (c *Code) Check() error {
	switch {
	case Normalize(c.Code) == "":
		return &InvalidCodeError{Field: "code", Reason: "is required"}
	case c.Kind != KindPercentage && c.Kind != KindFixed:
		return &InvalidCodeError{Field: "kind", Reason: fmt.Sprintf("%q is not supported", c.Kind)}
	case !c.Value.IsPositive():
		return &InvalidCodeError{Field: "value", Reason: "must be positive"}
	case c.Kind == KindPercentage && c.Value.GreaterThan(hundred):
		return &InvalidCodeError{Field: "value", Reason: "percentage cannot exceed 100"}
	case c.MinOrderAmount.IsNegative():
		return &InvalidCodeError{Field: "min_order_amount", Reason: "cannot be negative"}
	case c.MaxUses != nil && *c.MaxUses < 0:
		return &InvalidCodeError{Field: "max_uses", Reason: "cannot be negative"}
	}
	if a := c.Affiliate; a != nil {
		if strings.TrimSpace(a.Name) == "" {
			return &InvalidCodeError{Field: "affiliate_name", Reason: "is required for affiliate codes"}
		}
		if !a.CommissionRate.IsPositive() || a.CommissionRate.GreaterThan(hundred) {
			return &InvalidCodeError{Field: "commission_rate", Reason: "must be within (0, 100]"}
		}
	}
	return nil
}

// Validate checks whether the code may be applied to subtotal at time now.
func (c *Code) Validate(subtotal decimal.Decimal, now time.Time) error {
	if !c.Active {
		return ErrInactive
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return ErrExpired
	}
	if c.MaxUses != nil && c.CurrentUses >= *c.MaxUses {
		return ErrUsageExceeded
	}
	if subtotal.LessThan(c.MinOrderAmount) {
		return ErrBelowMinimum
	}
	return nil
}

// ListFilter narrows admin listings of codes.
type ListFilter struct {
	ActiveOnly    bool
	AffiliateOnly bool
	Limit         int
	Offset        int
}

// Repository provides persistence for discount codes.
type Repository interface {
	// FindByCode looks a code up case-insensitively. Returns ErrNotFound
	// when no code matches.
	FindByCode(ctx context.Context, code string) (*Code, error)
	// IncrementUses bumps the usage counter by one only while the code is
	// below its usage limit. Returns ErrUsageExceeded when the guard fails.
	IncrementUses(ctx context.Context, id string) error
	Create(ctx context.Context, c *Code) error
	Update(ctx context.Context, c *Code) error
	SetActive(ctx context.Context, code string, active bool) error
	List(ctx context.Context, f ListFilter) ([]Code, error)
}
