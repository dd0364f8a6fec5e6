// Package ledger derives a user's loyalty balance from their order history.
//
// Nothing in this package is persisted. Callers load the orders, project them
// to entries and call Compute on every read, so there is no stored balance
// that could drift from the orders it summarises.
package ledger

import "github.com/shopspring/decimal"

// Precision is the number of decimal places kept for points.
const Precision = 2

// EarnRate is the share of a paid order's total credited back as points.
var EarnRate = decimal.RequireFromString("0.01")

// Entry is the ledger-relevant projection of one order.
type Entry struct {
	// Settled is true when payment was confirmed and not reversed.
	Settled bool
	// Open is true for orders still awaiting payment. Points they use are
	// held until the order is paid or cancelled.
	Open       bool
	Total      decimal.Decimal
	PointsUsed decimal.Decimal
}

// Balance summarises a user's points.
type Balance struct {
	// Earned is the sum of points earned on settled orders.
	Earned decimal.Decimal
	// Used is the sum of points spent on settled orders.
	Used decimal.Decimal
	// Available is max(Earned-Used, 0).
	Available decimal.Decimal
	// Reserved is the sum of points held by open orders.
	Reserved decimal.Decimal
}

// Spendable returns the points that a new order may use: Available minus
// whatever open orders already hold, floored at zero.
func (b Balance) Spendable() decimal.Decimal {
	s := b.Available.Sub(b.Reserved)
	if s.IsNegative() {
		return decimal.Zero
	}
	return s
}

// Truncate rounds d toward zero at Precision decimal places. Points are never
// rounded up.
func Truncate(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Precision)
}

// EarnedOn returns the points a settled order with the given total earns.
func EarnedOn(total decimal.Decimal) decimal.Decimal {
	return Truncate(total.Mul(EarnRate))
}

// Compute folds entries into a Balance.
func Compute(entries []Entry) Balance {
	earned := decimal.Zero
	used := decimal.Zero
	reserved := decimal.Zero

	for _, e := range entries {
		switch {
		case e.Settled:
			earned = earned.Add(EarnedOn(e.Total))
			used = used.Add(Truncate(e.PointsUsed))
		case e.Open:
			reserved = reserved.Add(Truncate(e.PointsUsed))
		}
	}

	available := earned.Sub(used)
	if available.IsNegative() {
		available = decimal.Zero
	}

	return Balance{
		Earned:    earned,
		Used:      used,
		Available: Truncate(available),
		Reserved:  reserved,
	}
}
