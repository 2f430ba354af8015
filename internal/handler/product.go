package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/dyorwellness/storefront/internal/domain/product"
)

// ListProducts serves GET /products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range products {
				h.encodeProduct(e, &products[i])
			}
		})
	})
}

// GetProduct serves GET /products/{slug}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

func (h *Handler) encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "id", p.ID)
		encodeStr(e, "slug", p.Slug)
		encodeStr(e, "name", p.Name)
		encodeStr(e, "description", p.Description)
		encodeMoney(e, "price", p.Price)
		encodeStr(e, "category", p.Category)
		encodeDecimal(e, "purity", p.Purity)
		e.Field("sizeMg", func(e *jx.Encoder) { e.Int(p.SizeMg) })
		e.Field("inStock", func(e *jx.Encoder) { e.Bool(p.InStock) })
		encodeStr(e, "image", h.imageURL(p.Image))
	})
}

// imageURL resolves stored relative image paths against ImageBaseURL.
func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" ||
		strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
