package menu

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested menu item does not exist.
var ErrNotFound = errors.New("menu item not found")

// Item is a dish or drink on the menu.
type Item struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	// Available is false while the kitchen cannot serve the item.
	Available bool
	// Archived items are hidden from the menu and cannot be ordered, but
	// historical order lines still reference them.
	Archived bool
}

// Orderable reports whether the item can be added to a new order.
func (i Item) Orderable() bool {
	return i.Available && !i.Archived
}

// Repository defines read operations for the menu.
type Repository interface {
	// List returns all items that are not archived.
	List(ctx context.Context) ([]Item, error)
	GetByID(ctx context.Context, id string) (*Item, error)
	// GetByIDs returns the items found for ids. Missing ids are omitted.
	GetByIDs(ctx context.Context, ids []string) ([]Item, error)
}
