package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dyorwellness/storefront/internal/domain/affiliate"
)

func commissionFilter(r *http.Request) (affiliate.Filter, error) {
	q := r.URL.Query()
	f := affiliate.Filter{Code: q.Get("code"), Query: q.Get("q")}
	var err error
	if raw := q.Get("status"); raw != "" {
		if f.Status, err = affiliate.ParseStatus(raw); err != nil {
			return f, err
		}
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

// ListCommissions serves GET /admin/affiliates/commissions?status=&code=&q=&limit=&offset=.
func (h *Handler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	f, err := commissionFilter(r)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	list, err := h.affiliates.List(r.Context(), f)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range list {
				encodeCommission(e, &list[i])
			}
		})
	})
}

// CommissionSummary serves GET /admin/affiliates/summary?code=.
func (h *Handler) CommissionSummary(w http.ResponseWriter, r *http.Request) {
	f, err := commissionFilter(r)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	s, err := h.affiliates.Summary(r.Context(), f)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			encodeMoney(e, "pending", s.Pending)
			encodeMoney(e, "approved", s.Approved)
			encodeMoney(e, "paid", s.Paid)
			encodeMoney(e, "cancelled", s.Cancelled)
			e.Field("count", func(e *jx.Encoder) { e.Int(s.Count) })
		})
	})
}

// AdvanceCommission serves POST /admin/affiliates/commissions/{id}/status.
func (h *Handler) AdvanceCommission(w http.ResponseWriter, r *http.Request) {
	var raw string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key == "status" {
			var err error
			raw, err = d.Str()
			return err
		}
		return d.Skip()
	}); err != nil {
		fail(r.Context(), w, err)
		return
	}
	target, err := affiliate.ParseStatus(raw)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}

	c, err := h.affiliates.Advance(r.Context(), chi.URLParam(r, "id"), target)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	zctx.From(r.Context()).Info("Commission status changed",
		zap.String("commission", c.ID),
		zap.String("status", string(c.Status)),
	)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCommission(e, c) })
}

func encodeCommission(e *jx.Encoder, c *affiliate.Commission) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "id", c.ID)
		encodeStr(e, "orderId", c.OrderID)
		encodeStr(e, "orderNumber", c.OrderNumber)
		encodeStr(e, "code", c.Code)
		encodeStr(e, "affiliateName", c.AffiliateName)
		encodeStr(e, "affiliateEmail", c.AffiliateEmail)
		encodeMoney(e, "orderTotal", c.OrderTotal)
		encodeDecimal(e, "commissionRate", c.CommissionRate)
		encodeMoney(e, "amount", c.Amount)
		encodeStr(e, "status", string(c.Status))
		encodeTime(e, "createdAt", c.CreatedAt)
		encodeOptTime(e, "approvedAt", c.ApprovedAt)
		encodeOptTime(e, "paidAt", c.PaidAt)
		encodeOptTime(e, "cancelledAt", c.CancelledAt)
	})
}
