package app

import (
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestConfig(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
	for k, v := range env {
		t.Setenv(k, v)
	}
	return loadConfig(aconfig.Config{
		EnvPrefix: "STOREFRONT",
		SkipFiles: true,
		SkipFlags: true,
	})
}

func TestLoadConfig_MemoryDefaults(t *testing.T) {
	cfg, err := loadTestConfig(t, map[string]string{"STOREFRONT_STORAGE": "memory"})
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, "DYOR", cfg.OrderNumberPrefix)
	assert.Equal(t, 5*time.Minute, cfg.RedisTTL)
	assert.Equal(t, 100, cfg.RateLimit.Max)

	p, err := cfg.Pricing.Parse()
	require.NoError(t, err)
	assert.Equal(t, "150.00", p.Shipping.FreeThreshold.StringFixed(2))
	assert.Equal(t, "9.99", p.Shipping.FlatRate.StringFixed(2))
	assert.True(t, p.TaxRate.IsZero())
}

func TestLoadConfig_Postgres(t *testing.T) {
	cfg, err := loadTestConfig(t, map[string]string{
		"DATABASE_URL":                   "postgres://u:p@db:5432/storefront",
		"PORT":                           "9090",
		"STOREFRONT_ADMIN_KEY_PEPPER":    "pepper",
		"STOREFRONT_PRICING_TAX_RATE":    "8.25",
		"STOREFRONT_ORDER_NUMBER_PREFIX": "LAB",
	})
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, "postgres://u:p@db:5432/storefront", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
	assert.Equal(t, "LAB", cfg.OrderNumberPrefix)

	p, err := cfg.Pricing.Parse()
	require.NoError(t, err)
	assert.Equal(t, "8.25", p.TaxRate.String())
}

func TestLoadConfig_Invalid(t *testing.T) {
	for _, tt := range []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "MissingDatabase",
			env:  map[string]string{"STOREFRONT_ADMIN_KEY_PEPPER": "pepper"},
			want: "database URL is required",
		},
		{
			name: "MissingPepper",
			env:  map[string]string{"STOREFRONT_DATABASE_URL": "postgres://db"},
			want: "admin key pepper is required",
		},
		{
			name: "UnknownStorage",
			env:  map[string]string{"STOREFRONT_STORAGE": "sqlite"},
			want: `unknown storage "sqlite"`,
		},
		{
			name: "BadPricing",
			env:  map[string]string{"STOREFRONT_STORAGE": "memory", "STOREFRONT_PRICING_FLAT_SHIPPING_RATE": "cheap"},
			want: "parse flat shipping rate",
		},
		{
			name: "NegativePricing",
			env:  map[string]string{"STOREFRONT_STORAGE": "memory", "STOREFRONT_PRICING_TAX_RATE": "-1"},
			want: "tax rate cannot be negative",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadTestConfig(t, tt.env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
