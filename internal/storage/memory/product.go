package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"

	"github.com/dyorwellness/storefront/internal/domain/auth"
	"github.com/dyorwellness/storefront/internal/domain/product"
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ auth.Repository    = (*APIKeyRepository)(nil)
)

// ProductRepository serves the catalog from memory.
type ProductRepository struct {
	s *Store
}

// Upsert stores p, replacing any product with the same ID.
func (r *ProductRepository) Upsert(_ context.Context, p product.Product) error {
	return r.s.write(false, func() error {
		r.s.products[p.ID] = p
		return nil
	})
}

func (r *ProductRepository) List(_ context.Context) ([]product.Product, error) {
	var out []product.Product
	err := r.s.read(func() error {
		for _, p := range r.s.products {
			out = append(out, p)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b product.Product) int {
		if c := strings.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out, err
}

func (r *ProductRepository) GetBySlug(_ context.Context, slug string) (*product.Product, error) {
	var out *product.Product
	err := r.s.read(func() error {
		for _, p := range r.s.products {
			if p.Slug == slug {
				out = &p
				return nil
			}
		}
		return product.ErrNotFound
	})
	return out, err
}

func (r *ProductRepository) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	err := r.s.read(func() error {
		for _, id := range ids {
			if p, ok := r.s.products[id]; ok && !slices.ContainsFunc(out, func(x product.Product) bool { return x.ID == id }) {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

// APIKeyRepository stores admin keys keyed by hash.
type APIKeyRepository struct {
	s *Store
}

func (r *APIKeyRepository) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	var out *auth.APIKeyInfo
	err := r.s.read(func() error {
		k, ok := r.s.apikeys[hash]
		if !ok {
			return auth.ErrNotFound
		}
		cp := *k
		out = &cp
		return nil
	})
	return out, err
}

func (r *APIKeyRepository) Create(_ context.Context, k *auth.APIKeyInfo) error {
	return r.s.write(false, func() error {
		if _, ok := r.s.apikeys[k.KeyHash]; ok {
			return errors.New("api key already exists")
		}
		cp := *k
		r.s.apikeys[k.KeyHash] = &cp
		return nil
	})
}
