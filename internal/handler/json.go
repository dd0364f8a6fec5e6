package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-orders/internal/domain/ledger"
	"github.com/xenking/cafe-orders/internal/domain/menu"
	"github.com/xenking/cafe-orders/internal/domain/notify"
	"github.com/xenking/cafe-orders/internal/domain/offer"
	"github.com/xenking/cafe-orders/internal/domain/order"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

// decodeObject reads a JSON object body and calls fn for every field.
// Malformed JSON is reported as invalid input.
func decodeObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	d := jx.Decode(io.LimitReader(r.Body, maxBodySize), 4096)
	if err := d.Obj(fn); err != nil {
		var inErr *order.InvalidInputError
		if errors.As(err, &inErr) {
			return err
		}
		return &order.InvalidInputError{Field: "body", Reason: err.Error()}
	}
	return nil
}

// readDecimal accepts a JSON number or a numeric string that fits a stored
// amount.
func readDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, &order.InvalidInputError{Field: field, Reason: err.Error()}
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, &order.InvalidInputError{Field: field, Reason: err.Error()}
		}
		raw = s
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		_ = d.Skip()
		return decimal.Zero, &order.InvalidInputError{Field: field, Reason: "must be a number"}
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &order.InvalidInputError{Field: field, Reason: "not a valid amount"}
	}
	return order.NormalizeAmount(field, v)
}

func readString(d *jx.Decoder, field string) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return "", &order.InvalidInputError{Field: field, Reason: "must be a string"}
	}
	return s, nil
}

func readTime(d *jx.Decoder, field string) (*time.Time, error) {
	s, err := readString(d, field)
	if err != nil || s == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, &order.InvalidInputError{Field: field, Reason: "must be an RFC 3339 timestamp"}
	}
	return &t, nil
}

func encodeDecimal(e *jx.Encoder, field string, d decimal.Decimal) {
	e.FieldStart(field)
	e.Num(jx.Num(d.StringFixed(ledger.Precision)))
}

func encodeTime(e *jx.Encoder, field string, t *time.Time) {
	e.FieldStart(field)
	if t == nil {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeOptString(e *jx.Encoder, field, s string) {
	e.FieldStart(field)
	if s == "" {
		e.Null()
		return
	}
	e.Str(s)
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("order_number")
	e.Str(o.Number)
	e.FieldStart("user_id")
	e.Str(o.UserID)
	e.FieldStart("status")
	e.Str(string(o.ExternalStatus()))
	encodeDecimal(e, "subtotal", o.Subtotal)
	encodeDecimal(e, "discount", o.Discount)
	encodeDecimal(e, "total_amount", o.TotalAmount)
	encodeDecimal(e, "credit_points_used", o.CreditPointsUsed)
	encodeDecimal(e, "amount_due", o.AmountDue())
	e.FieldStart("customer_name")
	e.Str(o.CustomerName)
	encodeTime(e, "promised_time", o.PromisedTime)
	e.FieldStart("order_type")
	e.Str(string(o.OrderType))
	encodeOptString(e, "payment_method", string(o.PaymentMethod))
	encodeTime(e, "paid_at", o.PaidAt)
	encodeOptString(e, "offer_id", o.OfferID)
	encodeTime(e, "created_at", &o.CreatedAt)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		encodeOptString(e, "menu_item_id", it.MenuItemID)
		e.FieldStart("name")
		e.Str(it.Name)
		encodeDecimal(e, "unit_price", it.UnitPrice)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("size")
		e.Str(it.Size)
		e.FieldStart("customize")
		e.Str(it.Customize)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeMenuItem(e *jx.Encoder, it menu.Item) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(it.ID)
	e.FieldStart("name")
	e.Str(it.Name)
	e.FieldStart("description")
	e.Str(it.Description)
	encodeDecimal(e, "price", it.Price)
	e.FieldStart("category")
	e.Str(it.Category)
	e.FieldStart("available")
	e.Bool(it.Available)
	e.ObjEnd()
}

func encodeOffer(e *jx.Encoder, o *offer.Offer) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("name")
	e.Str(o.Name)
	e.FieldStart("description")
	e.Str(o.Description)
	encodeDecimal(e, "required_points", o.RequiredPoints)
	encodeTime(e, "valid_until", o.ValidUntil)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		encodeMenuItem(e, it)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeBalance(e *jx.Encoder, b ledger.Balance) {
	e.ObjStart()
	encodeDecimal(e, "earned", b.Earned)
	encodeDecimal(e, "used", b.Used)
	encodeDecimal(e, "available", b.Available)
	encodeDecimal(e, "reserved", b.Reserved)
	encodeDecimal(e, "spendable", b.Spendable())
	e.ObjEnd()
}

func encodeNotification(e *jx.Encoder, n notify.Notification) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(n.ID)
	e.FieldStart("title")
	e.Str(n.Title)
	e.FieldStart("message")
	e.Str(n.Message)
	e.FieldStart("category")
	e.Str(n.Category)
	e.FieldStart("read")
	e.Bool(n.Read)
	e.FieldStart("broadcast")
	e.Bool(n.Broadcast())
	encodeTime(e, "created_at", &n.CreatedAt)
	e.ObjEnd()
}
