package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dyorwellness/storefront/internal/domain/affiliate"
	"github.com/dyorwellness/storefront/internal/domain/checkout"
	"github.com/dyorwellness/storefront/internal/domain/discount"
	"github.com/dyorwellness/storefront/internal/domain/order"
	"github.com/dyorwellness/storefront/internal/domain/product"
)

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			encodeStr(e, "message", message)
		})
	})
}

// errorStatus maps a domain error to its HTTP status. Zero means the error
// is unexpected.
func errorStatus(err error) int {
	var (
		reqErr   *requestError
		codeErr  *discount.InvalidCodeError
		pnfErr   *checkout.ProductNotFoundError
		oosErr   *checkout.OutOfStockError
		qtyErr   *checkout.InvalidQuantityError
		orderTE  *order.TransitionError
		commisTE *affiliate.TransitionError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest

	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, discount.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, affiliate.ErrNotFound):
		return http.StatusNotFound

	case errors.As(err, &orderTE),
		errors.As(err, &commisTE),
		errors.Is(err, order.ErrAlreadyShipped),
		errors.Is(err, order.ErrNotShipped),
		errors.Is(err, order.ErrConflict),
		errors.Is(err, affiliate.ErrConflict),
		errors.Is(err, discount.ErrDuplicate),
		errors.Is(err, checkout.ErrRetry):
		return http.StatusConflict

	case errors.As(err, &codeErr),
		errors.As(err, &pnfErr),
		errors.As(err, &oosErr),
		errors.As(err, &qtyErr),
		errors.Is(err, discount.ErrInactive),
		errors.Is(err, discount.ErrExpired),
		errors.Is(err, discount.ErrUsageExceeded),
		errors.Is(err, discount.ErrBelowMinimum),
		errors.Is(err, checkout.ErrEmptyItems),
		errors.Is(err, checkout.ErrInvalidEmail),
		errors.Is(err, checkout.ErrMissingPayment),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrMissingTrackingInfo),
		errors.Is(err, affiliate.ErrInvalidStatus):
		return http.StatusUnprocessableEntity
	}
	return 0
}

// fail writes err as a {code, message} response. Unexpected errors are
// logged and hidden from the client. A retryable checkout failure carries
// only the retry message.
func fail(ctx context.Context, w http.ResponseWriter, err error) {
	status := errorStatus(err)
	switch {
	case status == 0:
		zctx.From(ctx).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	case errors.Is(err, checkout.ErrRetry):
		writeError(w, status, checkout.ErrRetry.Error())
	default:
		writeError(w, status, err.Error())
	}
}
