package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/cafe-orders/internal/domain/user"
)

const (
	getUserSQL = `SELECT id, name, email, role, credit_points FROM users WHERE id = $1`

	setPointsHintSQL = `UPDATE users SET credit_points = $2 WHERE id = $1`

	upsertUserSQL = `INSERT INTO users (id, name, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns the user with the given id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var (
		u    user.User
		role string
	)
	err := conn(ctx, r.pool).QueryRow(ctx, getUserSQL, id).
		Scan(&u.ID, &u.Name, &u.Email, &role, &u.CreditPointsHint)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	u.Role = user.Role(role)
	return &u, nil
}

// SetPointsHint stores the denormalized points balance.
func (r *UserRepository) SetPointsHint(ctx context.Context, id string, points decimal.Decimal) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setPointsHintSQL, id, points)
	if err != nil {
		return fmt.Errorf("setting points hint of %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// Upsert creates or updates a user. The points hint is left untouched.
func (r *UserRepository) Upsert(ctx context.Context, u user.User) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, upsertUserSQL, u.ID, u.Name, u.Email, string(u.Role)); err != nil {
		return fmt.Errorf("upserting user %q: %w", u.ID, err)
	}
	return nil
}
