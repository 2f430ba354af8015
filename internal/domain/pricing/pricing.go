// Package pricing turns a cart subtotal and discount into a final order total.
package pricing

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// ShippingPolicy charges a flat rate below a free-shipping threshold.
type ShippingPolicy struct {
	FreeThreshold decimal.Decimal
	FlatRate      decimal.Decimal
}

// Shipping returns the shipping cost for subtotal.
func (p ShippingPolicy) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(p.FreeThreshold) {
		return decimal.Zero
	}
	return p.FlatRate.Round(2)
}

// Breakdown is the priced result of a cart.
type Breakdown struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
	// Clamped is set when the components summed below zero.
	Clamped bool
}

// ComputeTotal returns subtotal - discount + shipping + tax rounded to cents.
// A negative result is clamped to zero and reported through clamped.
func ComputeTotal(subtotal, discount, shipping, tax decimal.Decimal) (total decimal.Decimal, clamped bool) {
	total = subtotal.Sub(discount).Add(shipping).Add(tax).Round(2)
	if total.IsNegative() {
		return decimal.Zero, true
	}
	return total, false
}

// Config holds the pricing knobs loaded from configuration.
type Config struct {
	Shipping ShippingPolicy
	// TaxRate is a percentage applied to the discounted subtotal.
	TaxRate decimal.Decimal
}

// Calculator prices carts according to Config.
type Calculator struct {
	cfg     Config
	clamped metric.Int64Counter
}

// NewCalculator creates a Calculator. A nil meter disables metrics.
func NewCalculator(cfg Config, meter metric.Meter) (*Calculator, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	clamped, err := meter.Int64Counter("storefront.pricing.total_clamped",
		metric.WithDescription("Orders whose total was clamped to zero"),
	)
	if err != nil {
		return nil, err
	}
	return &Calculator{cfg: cfg, clamped: clamped}, nil
}

// Tax returns the tax owed on taxable.
func (c *Calculator) Tax(taxable decimal.Decimal) decimal.Decimal {
	if !c.cfg.TaxRate.IsPositive() || !taxable.IsPositive() {
		return decimal.Zero
	}
	return taxable.Mul(c.cfg.TaxRate).Div(hundred).Round(2)
}

// Quote prices a cart. A clamped total indicates a miscomputed discount
// upstream: it is logged and counted but does not fail the checkout.
func (c *Calculator) Quote(ctx context.Context, subtotal, discount decimal.Decimal) Breakdown {
	subtotal = subtotal.Round(2)
	discount = discount.Round(2)

	shipping := c.cfg.Shipping.Shipping(subtotal)
	tax := c.Tax(subtotal.Sub(discount))
	total, clamped := ComputeTotal(subtotal, discount, shipping, tax)

	if clamped {
		zctx.From(ctx).Warn("Order total clamped to zero",
			zap.String("subtotal", subtotal.StringFixed(2)),
			zap.String("discount", discount.StringFixed(2)),
			zap.String("shipping", shipping.StringFixed(2)),
			zap.String("tax", tax.StringFixed(2)),
		)
		c.clamped.Add(ctx, 1)
	}

	return Breakdown{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Tax:      tax,
		Total:    total,
		Clamped:  clamped,
	}
}
