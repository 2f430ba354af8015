// Package handler exposes the storefront over HTTP using a chi router and
// jx JSON encoding.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dyorwellness/storefront/internal/domain/affiliate"
	"github.com/dyorwellness/storefront/internal/domain/auth"
	"github.com/dyorwellness/storefront/internal/domain/checkout"
	"github.com/dyorwellness/storefront/internal/domain/discount"
	"github.com/dyorwellness/storefront/internal/domain/order"
	"github.com/dyorwellness/storefront/internal/domain/product"
)

// Config holds non-dependency settings of the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative product image paths.
	ImageBaseURL string
	// AdminKeyPepper is the HMAC pepper admin keys are hashed with.
	AdminKeyPepper []byte
}

// Deps are the domain services behind the routes.
type Deps struct {
	Products   product.Repository
	Discounts  *discount.Engine
	Checkout   *checkout.Service
	Orders     *order.Service
	Affiliates *affiliate.Service
	APIKeys    auth.Repository
}

// Handler serves the public storefront API and the admin back office.
type Handler struct {
	products   product.Repository
	discounts  *discount.Engine
	checkout   *checkout.Service
	orders     *order.Service
	affiliates *affiliate.Service
	admin      *AdminAuth

	imageBaseURL string
}

// New creates a Handler.
func New(cfg Config, deps Deps) *Handler {
	return &Handler{
		products:     deps.Products,
		discounts:    deps.Discounts,
		checkout:     deps.Checkout,
		orders:       deps.Orders,
		affiliates:   deps.Affiliates,
		admin:        NewAdminAuth(deps.APIKeys, cfg.AdminKeyPepper),
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes returns the API router, meant to be mounted at /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/products", h.ListProducts)
	r.Get("/products/{slug}", h.GetProduct)
	r.Post("/discount-codes/validate", h.ValidateDiscountCode)
	r.Post("/checkout/quote", h.QuoteCheckout)
	r.Post("/checkout/complete", h.CompleteCheckout)
	r.Get("/orders/track", h.TrackOrder)

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.admin.Middleware)

		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{number}", h.GetOrder)
		r.Post("/orders/{number}/status", h.TransitionOrder)
		r.Put("/orders/{number}/tracking", h.UpdateTracking)

		r.Get("/discount-codes", h.ListDiscountCodes)
		r.Post("/discount-codes", h.CreateDiscountCode)
		r.Put("/discount-codes/{code}", h.UpdateDiscountCode)
		r.Post("/discount-codes/{code}/deactivate", h.DeactivateDiscountCode)

		r.Get("/affiliates/commissions", h.ListCommissions)
		r.Get("/affiliates/summary", h.CommissionSummary)
		r.Post("/affiliates/commissions/{id}/status", h.AdvanceCommission)
	})
	return r
}
