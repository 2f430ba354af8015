package pricing

import (
	"context"
	"testing"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestComputeTotal(t *testing.T) {
	tests := []struct {
		name        string
		subtotal    string
		discount    string
		shipping    string
		tax         string
		want        string
		wantClamped bool
	}{
		{name: "discount only", subtotal: "100", discount: "20", shipping: "0", tax: "0", want: "80.00"},
		{name: "discount exceeds subtotal", subtotal: "50", discount: "60", shipping: "0", tax: "0", want: "0.00", wantClamped: true},
		{name: "shipping and tax", subtotal: "49.99", discount: "5", shipping: "9.95", tax: "3.60", want: "58.54"},
		{name: "exactly zero is not clamped", subtotal: "10", discount: "10", shipping: "0", tax: "0", want: "0"},
		{name: "rounds half up", subtotal: "10.005", discount: "0", shipping: "0", tax: "0", want: "10.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, clamped := ComputeTotal(d(tt.subtotal), d(tt.discount), d(tt.shipping), d(tt.tax))
			assert.True(t, d(tt.want).Equal(got), "expected %s, got %s", tt.want, got)
			assert.Equal(t, tt.wantClamped, clamped)
		})
	}
}

func TestShippingPolicy(t *testing.T) {
	p := ShippingPolicy{FreeThreshold: d("150"), FlatRate: d("9.99")}

	assert.True(t, d("9.99").Equal(p.Shipping(d("149.99"))))
	assert.True(t, decimal.Zero.Equal(p.Shipping(d("150"))))
	assert.True(t, decimal.Zero.Equal(p.Shipping(d("300"))))
}

func TestCalculator_Quote(t *testing.T) {
	calc, err := NewCalculator(Config{
		Shipping: ShippingPolicy{FreeThreshold: d("150"), FlatRate: d("9.99")},
		TaxRate:  d("8"),
	}, nil)
	require.NoError(t, err)

	b := calc.Quote(context.Background(), d("100"), d("10"))

	assert.True(t, d("100").Equal(b.Subtotal))
	assert.True(t, d("10").Equal(b.Discount))
	assert.True(t, d("9.99").Equal(b.Shipping))
	assert.True(t, d("7.20").Equal(b.Tax))
	assert.True(t, d("107.19").Equal(b.Total))
	assert.False(t, b.Clamped)
}

func TestCalculator_QuoteLogsClampedTotal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ctx := zctx.Base(context.Background(), zap.New(core))

	calc, err := NewCalculator(Config{
		Shipping: ShippingPolicy{FreeThreshold: d("0"), FlatRate: d("0")},
	}, nil)
	require.NoError(t, err)

	b := calc.Quote(ctx, d("50"), d("60"))

	assert.True(t, b.Clamped)
	assert.True(t, decimal.Zero.Equal(b.Total))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Order total clamped to zero", logs.All()[0].Message)
}
