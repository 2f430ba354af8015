package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/dyorwellness/storefront/internal/domain/pricing"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr              string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL       string        `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Storage           string        `default:"postgres" usage:"Storage backend: postgres or memory"`
	RedisAddr         string        `usage:"Redis address for the catalog cache, disabled when empty" flag:"redis-addr"`
	RedisTTL          time.Duration `default:"5m" usage:"Catalog cache TTL" flag:"redis-ttl"`
	ImageBaseURL      string        `usage:"Base URL for relative product image paths" flag:"image-base-url"`
	AdminKeyPepper    string        `usage:"HMAC pepper for admin key hashing" flag:"admin-key-pepper"`
	SeedAdminKey      string        `usage:"Admin key seeded into the memory backend" flag:"seed-admin-key"`
	OrderNumberPrefix string        `default:"DYOR" usage:"Prefix of generated order numbers" flag:"order-number-prefix"`
	Pricing           PricingConfig
	RateLimit         RateLimitConfig
	CORS              CORSConfig
	Graceful          GracefulConfig
}

// PricingConfig holds money settings as decimal strings.
type PricingConfig struct {
	FreeShippingThreshold string `default:"150"  usage:"Subtotal at or above which shipping is free"`
	FlatShippingRate      string `default:"9.99" usage:"Shipping charged below the threshold"`
	TaxRate               string `default:"0"    usage:"Tax percentage applied to the discounted subtotal"`
}

// Parse converts the settings into a pricing.Config.
func (p PricingConfig) Parse() (pricing.Config, error) {
	var cfg pricing.Config
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"free shipping threshold", p.FreeShippingThreshold, &cfg.Shipping.FreeThreshold},
		{"flat shipping rate", p.FlatShippingRate, &cfg.Shipping.FlatRate},
		{"tax rate", p.TaxRate, &cfg.TaxRate},
	} {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return pricing.Config{}, errors.Wrapf(err, "parse %s %q", f.name, f.raw)
		}
		if v.IsNegative() {
			return pricing.Config{}, errors.Errorf("%s cannot be negative", f.name)
		}
		*f.dst = v
	}
	return cfg, nil
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
		}
		if c.AdminKeyPepper == "" {
			return errors.New("admin key pepper is required: set STOREFRONT_ADMIN_KEY_PEPPER")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q: want %s or %s", c.Storage, StoragePostgres, StorageMemory)
	}
	if _, err := c.Pricing.Parse(); err != nil {
		return errors.Wrap(err, "pricing")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
