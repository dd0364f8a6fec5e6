package offer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-orders/internal/domain/menu"
)

// ErrNotFound is returned when an offer does not exist or cannot be redeemed.
var ErrNotFound = errors.New("offer not found")

// Offer is a bundle of menu items redeemable with loyalty points.
type Offer struct {
	ID             string
	Name           string
	Description    string
	RequiredPoints decimal.Decimal
	Available      bool
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	Items          []menu.Item
}

// ActiveAt reports whether the offer can be redeemed at t.
func (o *Offer) ActiveAt(t time.Time) bool {
	if !o.Available {
		return false
	}
	if o.ValidFrom != nil && t.Before(*o.ValidFrom) {
		return false
	}
	if o.ValidUntil != nil && t.After(*o.ValidUntil) {
		return false
	}
	return true
}

// Repository provides offer lookup.
type Repository interface {
	// GetByID returns the offer with its bundled items, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Offer, error)
	// ListAvailable returns offers flagged available, with items.
	ListAvailable(ctx context.Context) ([]Offer, error)
}
