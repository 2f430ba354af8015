package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dyorwellness/storefront/internal/domain/discount"
)

// ValidateDiscountCode serves POST /discount-codes/validate. It quotes the
// discount for subtotal without consuming a use.
func (h *Handler) ValidateDiscountCode(w http.ResponseWriter, r *http.Request) {
	var (
		code     string
		subtotal decimal.Decimal
	)
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Str()
		case "subtotal":
			subtotal, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		fail(r.Context(), w, err)
		return
	}
	if code == "" {
		fail(r.Context(), w, badRequest("code is required"))
		return
	}

	applied, err := h.discounts.Quote(r.Context(), code, subtotal)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			encodeStr(e, "code", applied.Code.Code)
			encodeStr(e, "kind", string(applied.Code.Kind))
			encodeDecimal(e, "value", applied.Code.Value)
			encodeMoney(e, "amount", applied.Amount)
		})
	})
}

// ListDiscountCodes serves GET /admin/discount-codes?active=&affiliate=&limit=&offset=.
func (h *Handler) ListDiscountCodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := discount.ListFilter{
		ActiveOnly:    q.Get("active") == "true",
		AffiliateOnly: q.Get("affiliate") == "true",
	}
	var err error
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		fail(r.Context(), w, err)
		return
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		fail(r.Context(), w, err)
		return
	}

	codes, err := h.discounts.List(r.Context(), f)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range codes {
				encodeCode(e, &codes[i])
			}
		})
	})
}

// CreateDiscountCode serves POST /admin/discount-codes.
func (h *Handler) CreateDiscountCode(w http.ResponseWriter, r *http.Request) {
	c := discount.Code{Active: true}
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		return decodeCodeField(&c, d, key)
	}); err != nil {
		fail(r.Context(), w, err)
		return
	}

	if err := h.discounts.Create(r.Context(), &c); err != nil {
		fail(r.Context(), w, err)
		return
	}
	zctx.From(r.Context()).Info("Discount code created",
		zap.String("code", c.Code),
		zap.Bool("affiliate", c.IsAffiliate()),
	)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCode(e, &c) })
}

// UpdateDiscountCode serves PUT /admin/discount-codes/{code}. The body
// replaces every editable attribute; the usage counter is kept.
func (h *Handler) UpdateDiscountCode(w http.ResponseWriter, r *http.Request) {
	c := discount.Code{Active: true}
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		return decodeCodeField(&c, d, key)
	}); err != nil {
		fail(r.Context(), w, err)
		return
	}
	c.Code = chi.URLParam(r, "code")

	if err := h.discounts.Update(r.Context(), &c); err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCode(e, &c) })
}

// DeactivateDiscountCode serves POST /admin/discount-codes/{code}/deactivate.
func (h *Handler) DeactivateDiscountCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.discounts.Deactivate(r.Context(), code); err != nil {
		fail(r.Context(), w, err)
		return
	}
	zctx.From(r.Context()).Info("Discount code deactivated", zap.String("code", discount.Normalize(code)))
	w.WriteHeader(http.StatusNoContent)
}

func decodeCodeField(c *discount.Code, d *jx.Decoder, key string) error {
	var err error
	switch key {
	case "code":
		c.Code, err = d.Str()
	case "kind":
		var raw string
		if raw, err = d.Str(); err == nil {
			c.Kind, err = discount.ParseKind(raw)
		}
	case "value":
		c.Value, err = decodeDecimal(d)
	case "minOrderAmount":
		c.MinOrderAmount, err = decodeDecimal(d)
	case "maxUses":
		if d.Next() == jx.Null {
			return d.Null()
		}
		var n int
		n, err = d.Int()
		c.MaxUses = &n
	case "active":
		c.Active, err = d.Bool()
	case "expiresAt":
		c.ExpiresAt, err = decodeOptTime(d)
	case "affiliate":
		if d.Next() == jx.Null {
			c.Affiliate = nil
			return d.Null()
		}
		a := &discount.Affiliate{}
		err = d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "name":
				a.Name, err = d.Str()
			case "email":
				a.Email, err = d.Str()
			case "commissionRate":
				a.CommissionRate, err = decodeDecimal(d)
			default:
				err = d.Skip()
			}
			return err
		})
		c.Affiliate = a
	default:
		err = d.Skip()
	}
	return err
}

func encodeCode(e *jx.Encoder, c *discount.Code) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "id", c.ID)
		encodeStr(e, "code", c.Code)
		encodeStr(e, "kind", string(c.Kind))
		encodeDecimal(e, "value", c.Value)
		encodeMoney(e, "minOrderAmount", c.MinOrderAmount)
		e.Field("maxUses", func(e *jx.Encoder) {
			if c.MaxUses == nil {
				e.Null()
				return
			}
			e.Int(*c.MaxUses)
		})
		e.Field("currentUses", func(e *jx.Encoder) { e.Int(c.CurrentUses) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(c.Active) })
		encodeOptTime(e, "expiresAt", c.ExpiresAt)
		if a := c.Affiliate; a != nil {
			e.Field("affiliate", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					encodeStr(e, "name", a.Name)
					encodeStr(e, "email", a.Email)
					encodeDecimal(e, "commissionRate", a.CommissionRate)
				})
			})
		}
		encodeTime(e, "createdAt", c.CreatedAt)
		encodeTime(e, "updatedAt", c.UpdatedAt)
	})
}
