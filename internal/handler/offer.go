package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-orders/internal/domain/order"
)

// ListOffers returns the offers that can be redeemed now.
func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.offers.ListOffers(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range offers {
			encodeOffer(e, &offers[i])
		}
		e.ArrEnd()
	})
}

// RedeemOffer spends points on an offer bundle and returns the new order.
func (h *Handler) RedeemOffer(w http.ResponseWriter, r *http.Request) {
	var (
		points decimal.Decimal
		seen   bool
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "points_to_use" {
			return d.Skip()
		}
		v, err := readDecimal(d, key)
		points, seen = v, true
		return err
	})
	if err == nil && !seen {
		err = &order.InvalidInputError{Field: "points_to_use", Reason: "required"}
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	res, err := h.offers.RedeemOffer(r.Context(), actor(r), chi.URLParam(r, "id"), points)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("offer_id")
		e.Str(res.Offer.ID)
		encodeDecimal(e, "points_before", res.PointsBefore)
		encodeDecimal(e, "points_after", res.PointsAfter)
		e.FieldStart("order")
		encodeOrder(e, res.Order)
		e.ObjEnd()
	})
}
