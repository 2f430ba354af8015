package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dyorwellness/storefront/internal/domain/affiliate"
	"github.com/dyorwellness/storefront/internal/domain/auth"
	"github.com/dyorwellness/storefront/internal/domain/checkout"
	"github.com/dyorwellness/storefront/internal/domain/discount"
	"github.com/dyorwellness/storefront/internal/domain/order"
	"github.com/dyorwellness/storefront/internal/domain/product"
	"github.com/dyorwellness/storefront/internal/seed"
	"github.com/dyorwellness/storefront/internal/storage/memory"
	"github.com/dyorwellness/storefront/internal/storage/postgres"
	"github.com/dyorwellness/storefront/internal/storage/rediscache"
	"github.com/dyorwellness/storefront/pkg/health"
)

// storage is the set of repositories behind one backend.
type storage struct {
	products    product.Repository
	discounts   discount.Repository
	orders      order.Repository
	commissions affiliate.Repository
	apikeys     auth.Repository
	uow         checkout.UnitOfWork
	pinger      health.Pinger
	close       func()
}

func openStorage(ctx context.Context, lg *zap.Logger, cfg *Config) (*storage, error) {
	switch cfg.Storage {
	case StorageMemory:
		return openMemory(ctx, lg, cfg)
	default:
		return openPostgres(ctx, cfg)
	}
}

func openPostgres(ctx context.Context, cfg *Config) (*storage, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return &storage{
		products:    postgres.NewProductRepository(pool),
		discounts:   postgres.NewDiscountRepository(pool),
		orders:      postgres.NewOrderRepository(pool),
		commissions: postgres.NewCommissionRepository(pool),
		apikeys:     postgres.NewAPIKeyRepository(pool),
		uow:         postgres.NewUnitOfWork(pool),
		pinger:      pool,
		close:       pool.Close,
	}, nil
}

// openMemory creates an in-process store populated with the demo catalog.
func openMemory(ctx context.Context, lg *zap.Logger, cfg *Config) (*storage, error) {
	store := memory.New()
	res, err := seed.Apply(ctx, seed.Target{
		Products:  store.Products(),
		Discounts: discount.NewEngine(store.Discounts()),
		APIKeys:   store.APIKeys(),
	}, seed.AdminKey{Key: cfg.SeedAdminKey, Pepper: []byte(cfg.AdminKeyPepper)})
	if err != nil {
		return nil, errors.Wrap(err, "seed memory store")
	}
	lg.Warn("Using in-memory storage, data is lost on restart",
		zap.Int("products", res.Products),
		zap.Int("codes", res.CodesCreated),
		zap.Bool("admin_key", res.AdminKey),
	)
	return &storage{
		products:    store.Products(),
		discounts:   store.Discounts(),
		orders:      store.Orders(),
		commissions: store.Commissions(),
		apikeys:     store.APIKeys(),
		uow:         store,
		pinger:      store,
		close:       func() {},
	}, nil
}

// withCache wraps products with the Redis catalog cache when configured.
// The cache degrades to uncached reads, so an unreachable Redis is only
// reported, not fatal. The returned func releases the client.
func withCache(ctx context.Context, lg *zap.Logger, cfg *Config, products product.Repository) (product.Repository, func()) {
	if cfg.RedisAddr == "" {
		return products, func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		lg.Warn("Redis unreachable, catalog reads fall back to storage", zap.Error(err))
	}
	lg.Info("Catalog cache enabled", zap.String("redis", cfg.RedisAddr), zap.Duration("ttl", cfg.RedisTTL))
	return rediscache.NewProducts(products, client, cfg.RedisTTL), func() {
		if err := client.Close(); err != nil {
			lg.Warn("Close redis client", zap.Error(err))
		}
	}
}
