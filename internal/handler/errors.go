package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/cafe-orders/internal/domain/menu"
	"github.com/xenking/cafe-orders/internal/domain/offer"
	"github.com/xenking/cafe-orders/internal/domain/order"
)

// writeDomainError maps service errors to HTTP responses. Unknown errors are
// logged and hidden behind a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var mnfErr *order.MenuItemNotFoundError
	switch {
	case errors.As(err, &mnfErr):
		writeError(w, http.StatusUnprocessableEntity, mnfErr.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, offer.ErrNotFound):
		writeError(w, http.StatusNotFound, "offer not found")
	case errors.Is(err, menu.ErrNotFound):
		writeError(w, http.StatusNotFound, "menu item not found")
	case errors.Is(err, order.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrInsufficientPoints),
		errors.Is(err, order.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrConflict):
		writeError(w, http.StatusConflict, "concurrent update, please retry")
	case errors.Is(err, order.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
