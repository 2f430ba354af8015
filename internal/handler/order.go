package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dyorwellness/storefront/internal/domain/order"
)

// TrackOrder serves GET /orders/track?number=&email=. Unknown numbers and
// mismatched emails are both 404.
func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	number, email := q.Get("number"), q.Get("email")
	if number == "" || email == "" {
		fail(r.Context(), w, badRequest("number and email are required"))
		return
	}

	t, err := h.orders.Track(r.Context(), number, email)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrderWithHistory(e, t.Order, t.History) })
}

// ListOrders serves GET /admin/orders?status=&limit=&offset=.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var (
		f   order.ListFilter
		err error
	)
	if raw := r.URL.Query().Get("status"); raw != "" {
		if f.Status, err = order.ParseStatus(raw); err != nil {
			fail(r.Context(), w, err)
			return
		}
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		fail(r.Context(), w, err)
		return
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		fail(r.Context(), w, err)
		return
	}

	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orders", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range orders {
						encodeOrder(e, &orders[i])
					}
				})
			})
			e.Field("count", func(e *jx.Encoder) { e.Int(len(orders)) })
		})
	})
}

// GetOrder serves GET /admin/orders/{number} with the full history.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	o, err := h.orders.Get(r.Context(), number)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	history, err := h.orders.History(r.Context(), number)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrderWithHistory(e, o, history) })
}

// TransitionOrder serves POST /admin/orders/{number}/status.
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	var (
		rawStatus string
		tracking  order.Tracking
		md        order.TransitionMetadata
	)
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			rawStatus, err = d.Str()
		case "trackingNumber":
			tracking.Number, err = d.Str()
		case "carrier":
			tracking.Carrier, err = d.Str()
		case "note":
			md.Note, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		fail(r.Context(), w, err)
		return
	}

	target, err := order.ParseStatus(rawStatus)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	if tracking != (order.Tracking{}) {
		md.Tracking = &tracking
	}

	number := chi.URLParam(r, "number")
	o, err := h.orders.Transition(r.Context(), number, target, md)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	zctx.From(r.Context()).Info("Order status changed",
		zap.String("order", number),
		zap.String("status", string(o.Status)),
	)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// UpdateTracking serves PUT /admin/orders/{number}/tracking.
func (h *Handler) UpdateTracking(w http.ResponseWriter, r *http.Request) {
	var t order.Tracking
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "trackingNumber":
			t.Number, err = d.Str()
		case "carrier":
			t.Carrier, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		fail(r.Context(), w, err)
		return
	}

	o, err := h.orders.UpdateTracking(r.Context(), chi.URLParam(r, "number"), t)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) { encodeOrderFields(e, o) })
}

func encodeOrderWithHistory(e *jx.Encoder, o *order.Order, history []order.HistoryEntry) {
	e.Obj(func(e *jx.Encoder) {
		encodeOrderFields(e, o)
		e.Field("history", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, h := range history {
					e.Obj(func(e *jx.Encoder) {
						encodeStr(e, "status", string(h.Status))
						encodeTime(e, "at", h.At)
						if h.Note != "" {
							encodeStr(e, "note", h.Note)
						}
					})
				}
			})
		})
	})
}

func encodeOrderFields(e *jx.Encoder, o *order.Order) {
	encodeStr(e, "id", o.ID)
	encodeStr(e, "number", o.Number)
	encodeStr(e, "email", o.CustomerEmail)
	e.Field("items", func(e *jx.Encoder) { encodeItems(e, o.Items) })
	encodeMoney(e, "subtotal", o.Subtotal)
	encodeMoney(e, "discount", o.DiscountAmount)
	if o.DiscountCode != nil {
		encodeStr(e, "discountCode", *o.DiscountCode)
	}
	encodeMoney(e, "shipping", o.ShippingCost)
	encodeMoney(e, "tax", o.Tax)
	encodeMoney(e, "total", o.Total)
	encodeStr(e, "status", string(o.Status))
	encodeStr(e, "paymentStatus", string(o.PaymentStatus))
	encodeStr(e, "paymentMethod", o.PaymentMethod)
	if t := o.Tracking; t != nil {
		e.Field("tracking", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				encodeStr(e, "number", t.Number)
				encodeStr(e, "carrier", t.Carrier)
			})
		})
	}
	encodeTime(e, "createdAt", o.CreatedAt)
	encodeTime(e, "updatedAt", o.UpdatedAt)
	encodeOptTime(e, "shippedAt", o.ShippedAt)
	encodeOptTime(e, "deliveredAt", o.DeliveredAt)
}
