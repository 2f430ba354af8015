// Package rediscache wraps catalog reads with a Redis read-through cache.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dyorwellness/storefront/internal/domain/product"
)

const (
	keyPrefix = "storefront:products:"
	keyAll    = keyPrefix + "all"
	keySlug   = keyPrefix + "slug:"
)

// Client is the subset of *redis.Client the cache needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var _ product.Repository = (*Products)(nil)

// Products caches List and GetBySlug. GetByIDs always reaches the
// underlying repository because checkout must price from fresh data.
// Redis failures degrade to uncached reads.
type Products struct {
	next   product.Repository
	client Client
	ttl    time.Duration
}

// NewProducts wraps next with a cache stored in client for ttl.
func NewProducts(next product.Repository, client Client, ttl time.Duration) *Products {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Products{next: next, client: client, ttl: ttl}
}

type cachedProduct struct {
	ID          string          `json:"id"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Purity      decimal.Decimal `json:"purity"`
	SizeMg      int             `json:"size_mg"`
	InStock     bool            `json:"in_stock"`
	Image       string          `json:"image"`
}

func toCached(p product.Product) cachedProduct {
	return cachedProduct(p)
}

func (c cachedProduct) product() product.Product {
	return product.Product(c)
}

func (p *Products) List(ctx context.Context) ([]product.Product, error) {
	var cached []cachedProduct
	if p.load(ctx, keyAll, &cached) {
		out := make([]product.Product, len(cached))
		for i, c := range cached {
			out[i] = c.product()
		}
		return out, nil
	}

	list, err := p.next.List(ctx)
	if err != nil {
		return nil, err
	}
	toStore := make([]cachedProduct, len(list))
	for i, item := range list {
		toStore[i] = toCached(item)
	}
	p.store(ctx, keyAll, toStore)
	return list, nil
}

func (p *Products) GetBySlug(ctx context.Context, slug string) (*product.Product, error) {
	key := keySlug + slug

	var cached cachedProduct
	if p.load(ctx, key, &cached) {
		out := cached.product()
		return &out, nil
	}

	item, err := p.next.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	p.store(ctx, key, toCached(*item))
	return item, nil
}

func (p *Products) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return p.next.GetByIDs(ctx, ids)
}

// Invalidate drops the cached catalog and the given slugs.
func (p *Products) Invalidate(ctx context.Context, slugs ...string) error {
	keys := []string{keyAll}
	for _, s := range slugs {
		keys = append(keys, keySlug+s)
	}
	if err := p.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "invalidate product cache")
	}
	return nil
}

func (p *Products) load(ctx context.Context, key string, dest any) bool {
	raw, err := p.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zctx.From(ctx).Warn("Product cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		zctx.From(ctx).Warn("Product cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (p *Products) store(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		zctx.From(ctx).Warn("Product cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := p.client.Set(ctx, key, raw, p.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Product cache write failed", zap.String("key", key), zap.Error(err))
	}
}
