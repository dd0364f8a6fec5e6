package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/cafe-orders/internal/domain/notify"
)

const (
	insertNotificationSQL = `INSERT INTO notifications (user_id, title, message, category, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	listNotificationsSQL = `SELECT id, COALESCE(user_id, ''), title, message, category, read, created_at
		FROM notifications
		WHERE user_id = $1 OR user_id IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
)

var _ notify.Repository = (*NotificationRepository)(nil)

// NotificationRepository stores notifications in PostgreSQL.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository returns a NotificationRepository that uses the given pool.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Notify stores n. It always uses the pool so a notification is kept even
// when the caller's transaction rolls back.
func (r *NotificationRepository) Notify(ctx context.Context, n notify.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, insertNotificationSQL,
		nullString(n.UserID), n.Title, n.Message, n.Category, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storing notification %q: %w", n.Title, err)
	}
	return nil
}

// ListForUser returns the user's notifications and broadcasts, newest first.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]notify.Notification, error) {
	rows, err := r.pool.Query(ctx, listNotificationsSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing notifications of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (notify.Notification, error) {
		var n notify.Notification
		err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Category, &n.Read, &n.CreatedAt)
		return n, err
	})
}
