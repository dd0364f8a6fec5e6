package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/cafe-orders/internal/domain/menu"
)

// ListMenu returns every menu item that is not archived.
func (h *Handler) ListMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.menu.List(r.Context())
	if err != nil {
		writeDomainError(w, r, errors.Wrap(err, "list menu"))
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, it := range items {
			encodeMenuItem(e, it)
		}
		e.ArrEnd()
	})
}

// GetMenuItem returns a single menu item. Archived items are not found.
func (h *Handler) GetMenuItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.menu.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err == nil && it.Archived {
		err = menu.ErrNotFound
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeMenuItem(e, *it)
	})
}
