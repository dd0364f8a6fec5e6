package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/cafe-orders/internal/domain/menu"
)

const (
	menuColumns = `id, name, description, price, category, available, archived`

	listMenuSQL = `SELECT ` + menuColumns + ` FROM menu_items
		WHERE NOT archived ORDER BY category, name`

	getMenuItemSQL = `SELECT ` + menuColumns + ` FROM menu_items WHERE id = $1`

	getMenuItemsSQL = `SELECT ` + menuColumns + ` FROM menu_items WHERE id = ANY($1)`

	// xmax is zero only for freshly inserted rows.
	upsertMenuItemSQL = `INSERT INTO menu_items (` + menuColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			available = EXCLUDED.available,
			archived = EXCLUDED.archived,
			updated_at = now()
		RETURNING (xmax = 0)`
)

var _ menu.Repository = (*MenuRepository)(nil)

// MenuRepository implements menu.Repository backed by PostgreSQL.
type MenuRepository struct {
	pool *pgxpool.Pool
}

// NewMenuRepository returns a MenuRepository that uses the given pool.
func NewMenuRepository(pool *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{pool: pool}
}

// List returns all menu items that are not archived.
func (r *MenuRepository) List(ctx context.Context) ([]menu.Item, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listMenuSQL)
	if err != nil {
		return nil, fmt.Errorf("listing menu: %w", err)
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

// GetByID returns a single menu item, archived or not.
func (r *MenuRepository) GetByID(ctx context.Context, id string) (*menu.Item, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getMenuItemSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting menu item %q: %w", id, err)
	}

	it, err := pgx.CollectExactlyOneRow(rows, scanMenuItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, menu.ErrNotFound
		}
		return nil, fmt.Errorf("getting menu item %q: %w", id, err)
	}
	return &it, nil
}

// GetByIDs returns the menu items matching any of the given IDs.
func (r *MenuRepository) GetByIDs(ctx context.Context, ids []string) ([]menu.Item, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getMenuItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting menu items by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

// Upsert inserts or replaces a menu item and reports whether it was new.
func (r *MenuRepository) Upsert(ctx context.Context, it menu.Item) (inserted bool, err error) {
	err = conn(ctx, r.pool).QueryRow(ctx, upsertMenuItemSQL,
		it.ID, it.Name, it.Description, it.Price, it.Category, it.Available, it.Archived,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upserting menu item %q: %w", it.ID, err)
	}
	return inserted, nil
}

func scanMenuItem(row pgx.CollectableRow) (menu.Item, error) {
	var it menu.Item
	err := row.Scan(&it.ID, &it.Name, &it.Description, &it.Price, &it.Category, &it.Available, &it.Archived)
	return it, err
}
