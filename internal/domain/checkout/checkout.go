// Package checkout prices carts and turns paid carts into orders.
package checkout

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/go-faster/errors"

	"github.com/dyorwellness/storefront/internal/domain/affiliate"
	"github.com/dyorwellness/storefront/internal/domain/discount"
	"github.com/dyorwellness/storefront/internal/domain/order"
	"github.com/dyorwellness/storefront/internal/domain/pricing"
)

// Sentinel errors for checkout validation.
var (
	ErrEmptyItems     = errors.New("items required")
	ErrInvalidEmail   = errors.New("a valid customer email is required")
	ErrMissingPayment = errors.New("payment method and reference are required")
	// ErrRetry is returned when the order could not be persisted. Nothing was
	// recorded and the shopper may try again.
	ErrRetry = errors.New("checkout could not be completed, please retry")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// OutOfStockError indicates a requested product cannot be sold right now.
type OutOfStockError struct {
	ProductID string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %s is out of stock", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

type retryError struct {
	err error
}

func (e *retryError) Error() string { return ErrRetry.Error() + ": " + e.err.Error() }

func (e *retryError) Is(target error) bool { return target == ErrRetry }

func (e *retryError) Unwrap() error { return e.err }

// LineItem is a requested product and quantity.
type LineItem struct {
	ProductID string
	Quantity  int
}

// Request is a cart submitted for pricing.
type Request struct {
	Items []LineItem
	// DiscountCode is empty when the shopper applied no code.
	DiscountCode string
}

// Quote is a priced cart.
type Quote struct {
	Items []order.Item
	// Discount is nil when no code was applied.
	Discount  *discount.Applied
	Breakdown pricing.Breakdown
}

// Payment identifies a captured payment. Capture itself happens upstream.
type Payment struct {
	Method    string
	Reference string
}

// CompleteRequest is a paid cart to be turned into an order.
type CompleteRequest struct {
	Request
	Email   string
	Payment Payment
}

// Result is the outcome of a completed checkout.
type Result struct {
	Order *order.Order
	// Commission is nil unless an affiliate code was used.
	Commission *affiliate.Commission
}

// Repos are the repositories a unit of work exposes. All writes through them
// commit or roll back together.
type Repos struct {
	Discounts   discount.Repository
	Orders      order.Repository
	Commissions affiliate.Repository
}

// UnitOfWork runs fn atomically. If fn returns an error every write made
// through the supplied Repos is discarded.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}

func (r Request) validate() error {
	if len(r.Items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range r.Items {
		if item.Quantity <= 0 {
			return &InvalidQuantityError{ProductID: item.ProductID}
		}
	}
	return nil
}

func (r CompleteRequest) validate() (string, error) {
	if err := r.Request.validate(); err != nil {
		return "", err
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(r.Email))
	if err != nil {
		return "", ErrInvalidEmail
	}
	if strings.TrimSpace(r.Payment.Method) == "" || strings.TrimSpace(r.Payment.Reference) == "" {
		return "", ErrMissingPayment
	}
	return strings.ToLower(addr.Address), nil
}

// rejectReason classifies a checkout error for metrics.
func rejectReason(err error) string {
	var (
		pnf *ProductNotFoundError
		oos *OutOfStockError
		iq  *InvalidQuantityError
	)
	switch {
	case errors.Is(err, discount.ErrNotFound):
		return "code_not_found"
	case errors.Is(err, discount.ErrInactive):
		return "code_inactive"
	case errors.Is(err, discount.ErrExpired):
		return "code_expired"
	case errors.Is(err, discount.ErrUsageExceeded):
		return "code_usage_exceeded"
	case errors.Is(err, discount.ErrBelowMinimum):
		return "below_minimum"
	case errors.As(err, &pnf):
		return "product_not_found"
	case errors.As(err, &oos):
		return "out_of_stock"
	case errors.As(err, &iq), errors.Is(err, ErrEmptyItems):
		return "invalid_items"
	case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrMissingPayment):
		return "invalid_request"
	case errors.Is(err, ErrRetry):
		return "retry"
	default:
		return "internal"
	}
}

// isValidation reports whether err is a shopper-facing rejection that must
// pass through the unit of work unchanged.
func isValidation(err error) bool {
	switch rejectReason(err) {
	case "internal", "retry":
		return false
	default:
		return true
	}
}
