package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/dyorwellness/storefront/internal/domain/checkout"
	"github.com/dyorwellness/storefront/internal/domain/order"
	"github.com/dyorwellness/storefront/internal/domain/pricing"
)

func decodeItems(d *jx.Decoder) ([]checkout.LineItem, error) {
	var items []checkout.LineItem
	err := d.Arr(func(d *jx.Decoder) error {
		var item checkout.LineItem
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "productId":
				item.ProductID, err = d.Str()
			case "quantity":
				item.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	return items, err
}

// decodeCart decodes the fields shared by quote and complete requests.
func decodeCart(req *checkout.Request, d *jx.Decoder, key string) (bool, error) {
	var err error
	switch key {
	case "items":
		req.Items, err = decodeItems(d)
	case "discountCode":
		var code *string
		code, err = decodeOptString(d)
		if code != nil {
			req.DiscountCode = *code
		}
	default:
		return false, nil
	}
	return true, err
}

// QuoteCheckout serves POST /checkout/quote.
func (h *Handler) QuoteCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if ok, err := decodeCart(&req, d, key); ok {
			return err
		}
		return d.Skip()
	}); err != nil {
		fail(r.Context(), w, err)
		return
	}

	q, err := h.checkout.Quote(r.Context(), req)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("items", func(e *jx.Encoder) { encodeItems(e, q.Items) })
			if q.Discount != nil {
				encodeStr(e, "discountCode", q.Discount.Code.Code)
			}
			encodeBreakdown(e, q.Breakdown)
		})
	})
}

// CompleteCheckout serves POST /checkout/complete, called once the
// payment has been captured.
func (h *Handler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkout.CompleteRequest
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if ok, err := decodeCart(&req.Request, d, key); ok {
			return err
		}
		var err error
		switch key {
		case "email":
			req.Email, err = d.Str()
		case "payment":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "method":
					req.Payment.Method, err = d.Str()
				case "reference":
					req.Payment.Reference, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		fail(r.Context(), w, err)
		return
	}

	res, err := h.checkout.Complete(r.Context(), req)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, res.Order) })
}

func encodeItems(e *jx.Encoder, items []order.Item) {
	e.Arr(func(e *jx.Encoder) {
		for _, item := range items {
			e.Obj(func(e *jx.Encoder) {
				encodeStr(e, "productId", item.ProductID)
				encodeStr(e, "name", item.Name)
				encodeMoney(e, "unitPrice", item.UnitPrice)
				e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
				encodeMoney(e, "lineTotal", item.LineTotal())
			})
		}
	})
}

func encodeBreakdown(e *jx.Encoder, b pricing.Breakdown) {
	encodeMoney(e, "subtotal", b.Subtotal)
	encodeMoney(e, "discount", b.Discount)
	encodeMoney(e, "shipping", b.Shipping)
	encodeMoney(e, "tax", b.Tax)
	encodeMoney(e, "total", b.Total)
}
