package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-orders/internal/domain/ledger"
)

// Type is how the customer receives the order.
type Type string

// Order types.
const (
	TypePickup   Type = "pickup"
	TypeDineIn   Type = "dine_in"
	TypeDelivery Type = "delivery"
)

// Valid reports whether t is a known order type.
func (t Type) Valid() bool {
	switch t {
	case TypePickup, TypeDineIn, TypeDelivery:
		return true
	}
	return false
}

// PaymentMethod is how an order was settled.
type PaymentMethod string

// Payment methods.
const (
	PaymentCash   PaymentMethod = "cash"
	PaymentGCash  PaymentMethod = "gcash"
	PaymentCard   PaymentMethod = "card"
	PaymentPoints PaymentMethod = "points"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentGCash, PaymentCard, PaymentPoints:
		return true
	}
	return false
}

// Order is a customer order. Orders are never deleted; only their status
// changes.
type Order struct {
	Number string
	UserID string
	Status Status

	Subtotal         decimal.Decimal
	Discount         decimal.Decimal
	TotalAmount      decimal.Decimal
	CreditPointsUsed decimal.Decimal

	CustomerName  string
	PromisedTime  *time.Time
	OrderType     Type
	PaymentMethod PaymentMethod
	PaidAt        *time.Time
	// OfferID is set on orders created by redeeming an offer.
	OfferID string

	CreatedAt time.Time
	UpdatedAt time.Time
	Items     []Item
}

// Item is one order line. Name and UnitPrice are copied from the menu when
// the order is created so later menu edits do not change history.
type Item struct {
	MenuItemID string
	Name       string
	UnitPrice  decimal.Decimal
	Quantity   int
	Size       string
	Customize  string
}

// LineTotal returns UnitPrice times Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// IsPaid reports whether payment was confirmed and not reversed.
func (o *Order) IsPaid() bool {
	return o.PaidAt != nil && !o.Status.Terminal()
}

// IsOpen reports whether the order still awaits payment.
func (o *Order) IsOpen() bool {
	return o.PaidAt == nil && !o.Status.Terminal()
}

// LedgerEntry projects the order for the loyalty ledger.
func (o *Order) LedgerEntry() ledger.Entry {
	return ledger.Entry{
		Settled:    o.IsPaid(),
		Open:       o.IsOpen(),
		Total:      o.TotalAmount,
		PointsUsed: o.CreditPointsUsed,
	}
}

// ExternalStatus returns the client-facing status.
func (o *Order) ExternalStatus() Status {
	return o.Status.External()
}

// AmountDue is what the customer still has to pay. Points on a regular order
// are deducted at payment time; on a redeemed order they are already part of
// the discount.
func (o *Order) AmountDue() decimal.Decimal {
	due := o.TotalAmount
	if o.OfferID == "" {
		due = due.Sub(o.CreditPointsUsed)
	}
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// Entries projects orders for the loyalty ledger.
func Entries(orders []Order) []ledger.Entry {
	entries := make([]ledger.Entry, len(orders))
	for i := range orders {
		entries[i] = orders[i].LedgerEntry()
	}
	return entries
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores the order and its items. It returns ErrConflict when the
	// order number is already taken.
	Create(ctx context.Context, o *Order) error
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// ListByUser returns the user's orders with items, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// Update persists status, payment method and paid timestamp.
	Update(ctx context.Context, o *Order) error
	// ListNumbers streams every issued order number.
	ListNumbers(ctx context.Context, fn func(number string) error) error
}

// Transactor runs fn in a serializable transaction that holds the user's
// ledger lock. Repositories called with the ctx passed to fn join the
// transaction.
type Transactor interface {
	InUserTx(ctx context.Context, userID string, fn func(ctx context.Context) error) error
}
