package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyorwellness/storefront/internal/domain/affiliate"
	"github.com/dyorwellness/storefront/internal/domain/auth"
	"github.com/dyorwellness/storefront/internal/domain/checkout"
	"github.com/dyorwellness/storefront/internal/domain/discount"
	"github.com/dyorwellness/storefront/internal/domain/order"
	"github.com/dyorwellness/storefront/internal/domain/pricing"
	"github.com/dyorwellness/storefront/internal/domain/product"
	"github.com/dyorwellness/storefront/internal/handler"
	"github.com/dyorwellness/storefront/internal/storage/memory"
)

const (
	adminKey  = "sk_admin_test"
	viewerKey = "sk_viewer_test"
)

var pepper = []byte("test-pepper")

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func intPtr(v int) *int { return &v }

type server struct {
	t     *testing.T
	store *memory.Store
	srv   *httptest.Server
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	for _, p := range []product.Product{
		{ID: "bpc-157", Slug: "bpc-157-5mg", Name: "BPC-157", Price: d("49.99"), Category: "Recovery", Purity: d("99.2"), SizeMg: 5, InStock: true, Image: "/img/bpc-157.webp"},
		{ID: "tb-500", Slug: "tb-500-5mg", Name: "TB-500", Price: d("100.00"), Category: "Recovery", Purity: d("98.9"), SizeMg: 5, InStock: true},
		{ID: "ghk-cu", Slug: "ghk-cu-50mg", Name: "GHK-Cu", Price: d("39.00"), Category: "Skin", SizeMg: 50, InStock: false},
	} {
		require.NoError(t, store.Products().Upsert(ctx, p))
	}
	for _, c := range []discount.Code{
		{ID: "c-save10", Code: "SAVE10", Kind: discount.KindPercentage, Value: d("10"), Active: true},
		{ID: "c-big", Code: "BIGSPENDER", Kind: discount.KindFixed, Value: d("20"), MinOrderAmount: d("200"), Active: true},
		{ID: "c-once", Code: "ONCE", Kind: discount.KindFixed, Value: d("15"), Active: true, MaxUses: intPtr(1)},
		{
			ID: "c-labrat", Code: "LABRAT", Kind: discount.KindPercentage, Value: d("5"), Active: true,
			Affiliate: &discount.Affiliate{Name: "Lab Rat Reviews", Email: "lr@example.com", CommissionRate: d("10")},
		},
	} {
		require.NoError(t, store.Discounts().Create(ctx, &c))
	}
	require.NoError(t, store.APIKeys().Create(ctx, &auth.APIKeyInfo{
		ID: "k-admin", KeyHash: auth.HashKey(pepper, adminKey), Name: "ops", Scopes: []string{auth.ScopeAdmin},
	}))
	require.NoError(t, store.APIKeys().Create(ctx, &auth.APIKeyInfo{
		ID: "k-viewer", KeyHash: auth.HashKey(pepper, viewerKey), Name: "viewer", Scopes: []string{"read"},
	}))

	calc, err := pricing.NewCalculator(pricing.Config{
		Shipping: pricing.ShippingPolicy{FreeThreshold: d("150"), FlatRate: d("9.99")},
	}, nil)
	require.NoError(t, err)

	engine := discount.NewEngine(store.Discounts())
	commissions := affiliate.NewService(store.Commissions())
	co, err := checkout.NewService(checkout.Config{OrderNumberPrefix: "DYOR"}, checkout.Deps{
		Products:    store.Products(),
		Discounts:   engine,
		Pricing:     calc,
		Commissions: commissions,
		UnitOfWork:  store,
	})
	require.NoError(t, err)

	h := handler.New(handler.Config{
		ImageBaseURL:   "https://cdn.example.com",
		AdminKeyPepper: pepper,
	}, handler.Deps{
		Products:   store.Products(),
		Discounts:  engine,
		Checkout:   co,
		Orders:     order.NewService(store.Orders()),
		Affiliates: commissions,
		APIKeys:    store.APIKeys(),
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", h.Routes()))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &server{t: t, store: store, srv: srv}
}

type response struct {
	Status int
	Body   []byte
}

func (r response) Object(t *testing.T) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal(r.Body, &v), string(r.Body))
	return v
}

func (r response) Array(t *testing.T) []any {
	t.Helper()
	var v []any
	require.NoError(t, json.Unmarshal(r.Body, &v), string(r.Body))
	return v
}

func (s *server) do(method, path, key, body string) response {
	s.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	require.NoError(s.t, err)
	if key != "" {
		req.Header.Set(handler.HeaderAdminKey, key)
	}
	resp, err := s.srv.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return response{Status: resp.StatusCode, Body: raw}
}

func (s *server) placeOrder(code string) map[string]any {
	s.t.Helper()
	body := `{"items":[{"productId":"tb-500","quantity":2}],"email":"Researcher@Example.com",` +
		`"payment":{"method":"paypal","reference":"CAP-1"}`
	if code != "" {
		body += `,"discountCode":"` + code + `"`
	}
	resp := s.do(http.MethodPost, "/api/checkout/complete", "", body+"}")
	require.Equal(s.t, http.StatusCreated, resp.Status, string(resp.Body))
	return resp.Object(s.t)
}

func TestProducts(t *testing.T) {
	s := newServer(t)

	resp := s.do(http.MethodGet, "/api/products", "", "")
	require.Equal(t, http.StatusOK, resp.Status)
	list := resp.Array(t)
	require.Len(t, list, 3)

	resp = s.do(http.MethodGet, "/api/products/bpc-157-5mg", "", "")
	require.Equal(t, http.StatusOK, resp.Status)
	p := resp.Object(t)
	assert.Equal(t, "BPC-157", p["name"])
	assert.Equal(t, 49.99, p["price"])
	assert.Equal(t, "https://cdn.example.com/img/bpc-157.webp", p["image"])
	assert.Equal(t, true, p["inStock"])

	resp = s.do(http.MethodGet, "/api/products/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, float64(404), resp.Object(t)["code"])
}

func TestValidateDiscountCode(t *testing.T) {
	s := newServer(t)

	for _, tt := range []struct {
		name   string
		body   string
		status int
		amount float64
	}{
		{name: "Percentage", body: `{"code":"save10","subtotal":99.98}`, status: http.StatusOK, amount: 10.00},
		{name: "StringSubtotal", body: `{"code":"SAVE10","subtotal":"50"}`, status: http.StatusOK, amount: 5.00},
		{name: "Unknown", body: `{"code":"NOPE","subtotal":50}`, status: http.StatusNotFound},
		{name: "BelowMinimum", body: `{"code":"BIGSPENDER","subtotal":150}`, status: http.StatusUnprocessableEntity},
		{name: "MissingCode", body: `{"subtotal":150}`, status: http.StatusBadRequest},
		{name: "BadJSON", body: `{"code":`, status: http.StatusBadRequest},
		{name: "BadNumber", body: `{"code":"SAVE10","subtotal":"lots"}`, status: http.StatusBadRequest},
	} {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(http.MethodPost, "/api/discount-codes/validate", "", tt.body)
			require.Equal(t, tt.status, resp.Status, string(resp.Body))
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.amount, resp.Object(t)["amount"])
			}
		})
	}

	// Validation never consumes a use.
	c, err := s.store.Discounts().FindByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Zero(t, c.CurrentUses)
}

func TestQuoteCheckout(t *testing.T) {
	s := newServer(t)

	resp := s.do(http.MethodPost, "/api/checkout/quote", "",
		`{"items":[{"productId":"bpc-157","quantity":2}],"discountCode":"SAVE10"}`)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	q := resp.Object(t)
	assert.Equal(t, 99.98, q["subtotal"])
	assert.Equal(t, 10.0, q["discount"])
	assert.Equal(t, 9.99, q["shipping"])
	assert.Equal(t, 89.97, q["total"])
	assert.Equal(t, "SAVE10", q["discountCode"])
	require.Len(t, q["items"], 1)

	for _, tt := range []struct {
		name string
		body string
	}{
		{name: "Empty", body: `{"items":[]}`},
		{name: "ZeroQuantity", body: `{"items":[{"productId":"bpc-157","quantity":0}]}`},
		{name: "UnknownProduct", body: `{"items":[{"productId":"nope","quantity":1}]}`},
		{name: "OutOfStock", body: `{"items":[{"productId":"ghk-cu","quantity":1}]}`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(http.MethodPost, "/api/checkout/quote", "", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.Status, string(resp.Body))
		})
	}
}

func TestCompleteCheckoutAndTrack(t *testing.T) {
	s := newServer(t)

	o := s.placeOrder("labrat")
	number, _ := o["number"].(string)
	assert.Regexp(t, `^DYOR-\d{6}-[2-9A-HJKMNP-Z]{6}$`, number)
	assert.Equal(t, "researcher@example.com", o["email"])
	assert.Equal(t, 200.0, o["subtotal"])
	assert.Equal(t, 10.0, o["discount"])
	assert.Equal(t, 0.0, o["shipping"])
	assert.Equal(t, 190.0, o["total"])
	assert.Equal(t, "pending", o["status"])
	assert.Equal(t, "paid", o["paymentStatus"])
	assert.Equal(t, "LABRAT", o["discountCode"])

	resp := s.do(http.MethodGet, "/api/orders/track?number="+number+"&email=RESEARCHER@example.com", "", "")
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	tracked := resp.Object(t)
	assert.Equal(t, number, tracked["number"])
	history, _ := tracked["history"].([]any)
	require.Len(t, history, 1)
	assert.Equal(t, "pending", history[0].(map[string]any)["status"])

	resp = s.do(http.MethodGet, "/api/orders/track?number="+number+"&email=someone@example.com", "", "")
	assert.Equal(t, http.StatusNotFound, resp.Status)
	resp = s.do(http.MethodGet, "/api/orders/track?number="+number, "", "")
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	list, err := s.store.Commissions().List(context.Background(), affiliate.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "19.00", list[0].Amount.StringFixed(2))
}

func TestCompleteCheckout_Rejections(t *testing.T) {
	s := newServer(t)
	s.placeOrder("ONCE")

	resp := s.do(http.MethodPost, "/api/checkout/complete", "",
		`{"items":[{"productId":"tb-500","quantity":1}],"discountCode":"ONCE","email":"a@example.com","payment":{"method":"paypal","reference":"CAP-2"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
	assert.Equal(t, discount.ErrUsageExceeded.Error(), resp.Object(t)["message"])

	resp = s.do(http.MethodPost, "/api/checkout/complete", "",
		`{"items":[{"productId":"tb-500","quantity":1}],"email":"not-an-email","payment":{"method":"paypal","reference":"CAP-3"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)

	resp = s.do(http.MethodPost, "/api/checkout/complete", "",
		`{"items":[{"productId":"tb-500","quantity":1}],"email":"a@example.com"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
}

func TestAdminAuth(t *testing.T) {
	s := newServer(t)

	for _, tt := range []struct {
		name   string
		key    string
		status int
	}{
		{name: "Missing", key: "", status: http.StatusUnauthorized},
		{name: "Wrong", key: "sk_wrong", status: http.StatusUnauthorized},
		{name: "NoScope", key: viewerKey, status: http.StatusForbidden},
		{name: "Admin", key: adminKey, status: http.StatusOK},
	} {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(http.MethodGet, "/api/admin/orders", tt.key, "")
			assert.Equal(t, tt.status, resp.Status, string(resp.Body))
		})
	}
}

func TestAdminOrderLifecycle(t *testing.T) {
	s := newServer(t)
	number := s.placeOrder("")["number"].(string)
	path := "/api/admin/orders/" + number

	transition := func(body string) response {
		return s.do(http.MethodPost, path+"/status", adminKey, body)
	}

	resp := transition(`{"status":"delivered"}`)
	assert.Equal(t, http.StatusConflict, resp.Status)

	resp = transition(`{"status":"teleported"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)

	resp = transition(`{"status":"processing","note":"picked"}`)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	assert.Equal(t, "processing", resp.Object(t)["status"])

	resp = transition(`{"status":"shipped"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)

	resp = transition(`{"status":"shipped","trackingNumber":"1Z999","carrier":"UPS"}`)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	shipped := resp.Object(t)
	assert.Equal(t, map[string]any{"number": "1Z999", "carrier": "UPS"}, shipped["tracking"])
	assert.NotNil(t, shipped["shippedAt"])

	resp = transition(`{"status":"shipped","trackingNumber":"1Z000","carrier":"UPS"}`)
	assert.Equal(t, http.StatusConflict, resp.Status)

	resp = s.do(http.MethodPut, path+"/tracking", adminKey, `{"trackingNumber":"1Z000","carrier":"FedEx"}`)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))

	resp = s.do(http.MethodGet, path, adminKey, "")
	require.Equal(t, http.StatusOK, resp.Status)
	full := resp.Object(t)
	assert.Equal(t, "FedEx", full["tracking"].(map[string]any)["carrier"])
	assert.Len(t, full["history"], 4)

	resp = s.do(http.MethodGet, "/api/admin/orders?status=shipped", adminKey, "")
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, 1.0, resp.Object(t)["count"])

	resp = s.do(http.MethodGet, "/api/admin/orders?limit=-1", adminKey, "")
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = s.do(http.MethodGet, "/api/admin/orders/DYOR-000000-XXXXXX", adminKey, "")
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestAdminDiscountCodes(t *testing.T) {
	s := newServer(t)

	resp := s.do(http.MethodPost, "/api/admin/discount-codes", adminKey,
		`{"code":" spring25 ","kind":"percentage","value":25,"maxUses":100,
		  "affiliate":{"name":"Peptide Pete","email":"pete@example.com","commissionRate":"7.5"}}`)
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	created := resp.Object(t)
	assert.Equal(t, "SPRING25", created["code"])
	assert.Equal(t, 100.0, created["maxUses"])
	assert.Equal(t, 7.5, created["affiliate"].(map[string]any)["commissionRate"])

	resp = s.do(http.MethodPost, "/api/admin/discount-codes", adminKey, `{"code":"SPRING25","kind":"fixed","value":5}`)
	assert.Equal(t, http.StatusConflict, resp.Status)

	resp = s.do(http.MethodPost, "/api/admin/discount-codes", adminKey, `{"code":"HALF","kind":"percentage","value":150}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)

	resp = s.do(http.MethodPut, "/api/admin/discount-codes/spring25", adminKey, `{"kind":"fixed","value":5,"maxUses":null}`)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	updated := resp.Object(t)
	assert.Equal(t, "fixed", updated["kind"])
	assert.Nil(t, updated["maxUses"])
	assert.Nil(t, updated["affiliate"])

	resp = s.do(http.MethodPut, "/api/admin/discount-codes/GHOST", adminKey, `{"kind":"fixed","value":5}`)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	resp = s.do(http.MethodPost, "/api/admin/discount-codes/Spring25/deactivate", adminKey, "")
	require.Equal(t, http.StatusNoContent, resp.Status)

	resp = s.do(http.MethodPost, "/api/discount-codes/validate", "", `{"code":"SPRING25","subtotal":50}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
	assert.Equal(t, discount.ErrInactive.Error(), resp.Object(t)["message"])

	resp = s.do(http.MethodGet, "/api/admin/discount-codes?active=true", adminKey, "")
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Len(t, resp.Array(t), 4)
}

func TestAdminCommissions(t *testing.T) {
	s := newServer(t)
	s.placeOrder("LABRAT")
	s.placeOrder("LABRAT")
	s.placeOrder("SAVE10")

	resp := s.do(http.MethodGet, "/api/admin/affiliates/commissions?code=labrat", adminKey, "")
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	list := resp.Array(t)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, 19.0, first["amount"])
	assert.Equal(t, "pending", first["status"])
	id := first["id"].(string)

	advance := func(body string) response {
		return s.do(http.MethodPost, "/api/admin/affiliates/commissions/"+id+"/status", adminKey, body)
	}
	resp = advance(`{"status":"paid"}`)
	assert.Equal(t, http.StatusConflict, resp.Status)
	resp = advance(`{"status":"approved"}`)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	assert.NotNil(t, resp.Object(t)["approvedAt"])
	resp = advance(`{"status":"bogus"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)

	resp = s.do(http.MethodPost, "/api/admin/affiliates/commissions/missing/status", adminKey, `{"status":"approved"}`)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	resp = s.do(http.MethodGet, "/api/admin/affiliates/summary?code=LABRAT", adminKey, "")
	require.Equal(t, http.StatusOK, resp.Status)
	sum := resp.Object(t)
	assert.Equal(t, 19.0, sum["pending"])
	assert.Equal(t, 19.0, sum["approved"])
	assert.Equal(t, 0.0, sum["paid"])
	assert.Equal(t, 2.0, sum["count"])

	resp = s.do(http.MethodGet, "/api/admin/affiliates/commissions?q=lab+rat&status=approved", adminKey, "")
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Len(t, resp.Array(t), 1)
}

func TestRouteNotFound(t *testing.T) {
	s := newServer(t)
	resp := s.do(http.MethodGet, "/api/nothing-here", "", "")
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "route not found", resp.Object(t)["message"])
}
