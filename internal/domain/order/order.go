package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// transitions lists the statuses reachable from each non-terminal status.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled, StatusRefunded},
	StatusProcessing: {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered, StatusCancelled, StatusRefunded},
}

// ParseStatus converts a raw string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded:
		return st, nil
	default:
		return "", errors.Wrapf(ErrInvalidStatus, "%q", s)
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
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

// PaymentStatus tracks the payment side of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

// Tracking identifies a shipment with a carrier.
type Tracking struct {
	Number  string
	Carrier string
}

// Item is a priced snapshot of a cart line taken at checkout.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// LineTotal returns UnitPrice * Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a completed or in-flight purchase.
type Order struct {
	ID            string
	Number        string
	CustomerEmail string
	Items         []Item

	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	// DiscountCode is nil when no code was applied.
	DiscountCode *string
	ShippingCost decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal

	Status           Status
	PaymentStatus    PaymentStatus
	PaymentMethod    string
	PaymentReference string
	// Tracking is nil until the order ships.
	Tracking *Tracking

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
}

// CheckTotals verifies the pricing invariants of the order.
func (o *Order) CheckTotals() error {
	if o.DiscountAmount.GreaterThan(o.Subtotal) {
		return errors.Errorf("discount %s exceeds subtotal %s", o.DiscountAmount, o.Subtotal)
	}
	want := o.Subtotal.Sub(o.DiscountAmount).Add(o.ShippingCost).Add(o.Tax).Round(2)
	if want.IsNegative() {
		want = decimal.Zero
	}
	if !want.Equal(o.Total) {
		return errors.Errorf("total %s does not match components %s", o.Total, want)
	}
	return nil
}

// HistoryEntry is an immutable record of a status change.
type HistoryEntry struct {
	Status Status
	At     time.Time
	Note   string
}

// ListFilter narrows admin order listings.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Repository defines persistence operations for orders and their history.
type Repository interface {
	// Create stores a new order together with its first history entry.
	Create(ctx context.Context, o *Order, first HistoryEntry) error
	// Get returns the order with the given number or ErrNotFound.
	Get(ctx context.Context, number string) (*Order, error)
	// UpdateStatus persists o only while the stored status still equals
	// prev, appending entry. Returns ErrConflict otherwise.
	UpdateStatus(ctx context.Context, o *Order, prev Status, entry HistoryEntry) error
	// UpdateTracking persists o's tracking info, appending entry.
	UpdateTracking(ctx context.Context, o *Order, entry HistoryEntry) error
	History(ctx context.Context, orderID string) ([]HistoryEntry, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
}
