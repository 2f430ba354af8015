package discount

import "github.com/shopspring/decimal"

// Calculate returns the discount amount the code grants on subtotal.
//
// The result is rounded to cents, never negative, and never larger than
// subtotal.
func Calculate(c *Code, subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch c.Kind {
	case KindPercentage:
		amount = subtotal.Mul(c.Value).Div(hundred)
	case KindFixed:
		amount = decimal.Min(c.Value, subtotal)
	default:
		return decimal.Zero
	}

	amount = amount.Round(2)
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	return amount
}
