package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// ListNotifications returns the caller's notifications and broadcasts,
// newest first. The optional limit query parameter is capped by config.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := h.notifyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, h.notifyLimit)
	}

	notes, err := h.notifications.ListForUser(r.Context(), actor(r).UserID, limit)
	if err != nil {
		writeDomainError(w, r, errors.Wrap(err, "list notifications"))
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, n := range notes {
			encodeNotification(e, n)
		}
		e.ArrEnd()
	})
}
