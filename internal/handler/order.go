package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/cafe-orders/internal/domain/order"
)

// CreateOrder places an order for the caller.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCreateOrder(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), actor(r), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// ListOrders returns the caller's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context(), actor(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// GetOrder returns a single order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), actor(r), chi.URLParam(r, "number"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// AvailablePoints returns the caller's loyalty balance.
func (h *Handler) AvailablePoints(w http.ResponseWriter, r *http.Request) {
	b, err := h.orders.AvailablePoints(r.Context(), actor(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeBalance(e, b)
	})
}

// CancelOrder cancels an order.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.CancelOrder(r.Context(), actor(r), chi.URLParam(r, "number"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// ConfirmPayment records payment of an order.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var method string
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "payment_method" {
			return d.Skip()
		}
		v, err := readString(d, key)
		method = v
		return err
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	res, err := h.orders.ConfirmPayment(r.Context(), actor(r), chi.URLParam(r, "number"), order.PaymentMethod(method))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("already_paid")
		e.Bool(res.AlreadyPaid)
		encodeDecimal(e, "points_earned", res.PointsEarned)
		encodeDecimal(e, "credit_points", res.Balance.Available)
		e.FieldStart("order")
		encodeOrder(e, res.Order)
		e.ObjEnd()
	})
}

// UpdateStatus moves an order through the kitchen workflow.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var status string
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		v, err := readString(d, key)
		status = v
		return err
	})
	if err == nil && status == "" {
		err = &order.InvalidInputError{Field: "status", Reason: "required"}
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), actor(r), chi.URLParam(r, "number"), order.Status(status))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// PaymentLink returns a GCash link for the amount still due.
func (h *Handler) PaymentLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.orders.PaymentLink(r.Context(), actor(r), chi.URLParam(r, "number"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("url")
		e.Str(link)
		e.ObjEnd()
	})
}

func decodeCreateOrder(r *http.Request) (order.CreateOrderRequest, error) {
	var req order.CreateOrderRequest
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				it, err := decodeLineItem(d, len(req.Items))
				req.Items = append(req.Items, it)
				return err
			})
		case "credit_points_used":
			req.RequestedPoints, err = readDecimal(d, key)
		case "total_amount":
			req.TotalAmount, err = readDecimal(d, key)
		case "customer_name":
			req.CustomerName, err = readString(d, key)
		case "promised_time":
			req.PromisedTime, err = readTime(d, key)
		case "order_type":
			var s string
			s, err = readString(d, key)
			req.OrderType = order.Type(s)
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func decodeLineItem(d *jx.Decoder, idx int) (order.LineItem, error) {
	var it order.LineItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		field := fmt.Sprintf("items[%d].%s", idx, key)
		var err error
		switch key {
		case "menu_item_id":
			it.MenuItemID, err = readString(d, field)
		case "quantity":
			if d.Next() != jx.Number {
				_ = d.Skip()
				return &order.InvalidInputError{Field: field, Reason: "must be an integer"}
			}
			it.Quantity, err = d.Int()
			if err != nil {
				err = &order.InvalidInputError{Field: field, Reason: "must be an integer"}
			}
		case "size":
			it.Size, err = readString(d, field)
		case "customize":
			it.Customize, err = readString(d, field)
		default:
			err = d.Skip()
		}
		return err
	})
	return it, err
}
