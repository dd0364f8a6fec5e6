package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors. Typed errors below match them with errors.Is.
var (
	ErrNotFound           = errors.New("order not found")
	ErrConflict           = errors.New("order conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

// MenuItemNotFoundError indicates an order line references a menu item that
// does not exist or was archived.
type MenuItemNotFoundError struct {
	MenuItemID string
}

func (e *MenuItemNotFoundError) Error() string {
	return fmt.Sprintf("menu item %s not found", e.MenuItemID)
}

func (e *MenuItemNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InsufficientPointsError indicates a request for more points than the user
// can spend.
type InsufficientPointsError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: requested %s, available %s",
		e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientPointsError) Is(target error) bool {
	return target == ErrInsufficientPoints
}

// InvalidInputError describes a malformed request field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// InvalidTransitionError indicates a status change the order cannot make.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func invalidInput(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}
