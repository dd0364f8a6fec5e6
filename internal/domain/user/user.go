package user

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("user not found")

// Role is the permission level of a user.
type Role string

// Known roles.
const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// User is a registered account.
type User struct {
	ID    string
	Name  string
	Email string
	Role  Role
	// CreditPointsHint is a denormalized copy of the last computed loyalty
	// balance. It is written after ledger-changing operations and is never
	// read to make decisions.
	CreditPointsHint decimal.Decimal
}

// Actor identifies the caller of a core operation.
type Actor struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the actor has staff privileges.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAccess reports whether the actor may act on a resource owned by ownerID.
func (a Actor) CanAccess(ownerID string) bool {
	return a.IsAdmin() || (a.UserID != "" && a.UserID == ownerID)
}

// Repository provides user lookup and the points hint write.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	SetPointsHint(ctx context.Context, id string, points decimal.Decimal) error
}
