package rediscache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyorwellness/storefront/internal/domain/product"
)

type fakeClient struct {
	mu     sync.Mutex
	data   map[string]string
	ttl    map[string]time.Duration
	getErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: make(map[string]string), ttl: make(map[string]time.Duration)}
}

func (f *fakeClient) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data[key] = string(value.([]byte))
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type countingRepo struct {
	products []product.Product
	lists    int
	slugs    int
	byIDs    int
}

func (r *countingRepo) List(context.Context) ([]product.Product, error) {
	r.lists++
	return r.products, nil
}

func (r *countingRepo) GetBySlug(_ context.Context, slug string) (*product.Product, error) {
	r.slugs++
	for _, p := range r.products {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, product.ErrNotFound
}

func (r *countingRepo) GetByIDs(context.Context, []string) ([]product.Product, error) {
	r.byIDs++
	return r.products, nil
}

func catalog() []product.Product {
	return []product.Product{
		{ID: "bpc-157", Slug: "bpc-157-5mg", Name: "BPC-157", Price: decimal.RequireFromString("49.99"), Purity: decimal.RequireFromString("99.1"), SizeMg: 5, InStock: true},
		{ID: "tb-500", Slug: "tb-500-5mg", Name: "TB-500", Price: decimal.RequireFromString("59.00"), SizeMg: 5},
	}
}

func TestProducts_ListCachesResult(t *testing.T) {
	repo := &countingRepo{products: catalog()}
	client := newFakeClient()
	cache := NewProducts(repo, client, time.Minute)
	ctx := context.Background()

	first, err := cache.List(ctx)
	require.NoError(t, err)
	second, err := cache.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.lists)
	require.Len(t, second, 2)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.True(t, first[0].Price.Equal(second[0].Price))
	assert.Equal(t, time.Minute, client.ttl[keyAll])
}

func TestProducts_GetBySlug(t *testing.T) {
	repo := &countingRepo{products: catalog()}
	cache := NewProducts(repo, newFakeClient(), 0)
	ctx := context.Background()

	p, err := cache.GetBySlug(ctx, "bpc-157-5mg")
	require.NoError(t, err)
	p, err = cache.GetBySlug(ctx, "bpc-157-5mg")
	require.NoError(t, err)
	assert.Equal(t, "BPC-157", p.Name)
	assert.Equal(t, 1, repo.slugs)

	_, err = cache.GetBySlug(ctx, "missing")
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestProducts_GetByIDsBypassesCache(t *testing.T) {
	repo := &countingRepo{products: catalog()}
	cache := NewProducts(repo, newFakeClient(), time.Minute)

	for range 3 {
		_, err := cache.GetByIDs(context.Background(), []string{"bpc-157"})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, repo.byIDs)
}

func TestProducts_RedisDownFallsBack(t *testing.T) {
	repo := &countingRepo{products: catalog()}
	client := newFakeClient()
	client.getErr = errors.New("dial tcp: connection refused")
	cache := NewProducts(repo, client, time.Minute)

	list, err := cache.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 1, repo.lists)
}

func TestProducts_Invalidate(t *testing.T) {
	repo := &countingRepo{products: catalog()}
	client := newFakeClient()
	cache := NewProducts(repo, client, time.Minute)
	ctx := context.Background()

	_, err := cache.List(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, "bpc-157-5mg"))
	_, err = cache.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, repo.lists)
}
