package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/cafe-orders/internal/domain/order"
)

const (
	orderColumns = `number, user_id, status, subtotal, discount, total_amount, credit_points_used,
		customer_name, promised_time, order_type, payment_method, paid_at, offer_id, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (number) DO NOTHING`

	createOrderItemSQL = `INSERT INTO order_items
		(order_number, position, menu_item_id, name, unit_price, quantity, size, customize)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE number = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, number`

	listOrderItemsSQL = `SELECT order_number, COALESCE(menu_item_id, ''), name, unit_price, quantity, size, customize
		FROM order_items WHERE order_number = ANY($1) ORDER BY order_number, position`

	updateOrderSQL = `UPDATE orders
		SET status = $2, payment_method = $3, paid_at = $4, updated_at = $5
		WHERE number = $1`

	listOrderNumbersSQL = `SELECT number FROM orders`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and its items atomically. A taken number is
// reported as order.ErrConflict without aborting the surrounding transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return inTx(ctx, r.pool, func(q querier) error {
		tag, err := q.Exec(ctx, createOrderSQL,
			o.Number, o.UserID, string(o.Status), o.Subtotal, o.Discount, o.TotalAmount, o.CreditPointsUsed,
			o.CustomerName, o.PromisedTime, string(o.OrderType), nullString(string(o.PaymentMethod)),
			o.PaidAt, nullString(o.OfferID), o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating order %q: %w", o.Number, err)
		}
		if tag.RowsAffected() == 0 {
			return order.ErrConflict
		}

		if len(o.Items) == 0 {
			return nil
		}
		b := &pgx.Batch{}
		for i, it := range o.Items {
			b.Queue(createOrderItemSQL,
				o.Number, i, nullString(it.MenuItemID), it.Name, it.UnitPrice, it.Quantity, it.Size, it.Customize,
			)
		}
		if err := q.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("creating items of order %q: %w", o.Number, err)
		}
		return nil
	})
}

// GetByNumber returns the order with its items.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, getOrderSQL, number)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}

	orders := []order.Order{o}
	if err := loadItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByUser returns the user's orders with items, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	if err := loadItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Update persists the mutable lifecycle fields.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateOrderSQL,
		o.Number, string(o.Status), nullString(string(o.PaymentMethod)), o.PaidAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.Number, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// ListNumbers streams every issued order number to fn.
func (r *OrderRepository) ListNumbers(ctx context.Context, fn func(number string) error) error {
	rows, err := conn(ctx, r.pool).Query(ctx, listOrderNumbersSQL)
	if err != nil {
		return fmt.Errorf("listing order numbers: %w", err)
	}

	var number string
	_, err = pgx.ForEachRow(rows, []any{&number}, func() error {
		return fn(number)
	})
	if err != nil {
		return fmt.Errorf("listing order numbers: %w", err)
	}
	return nil
}

func loadItems(ctx context.Context, q querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	numbers := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i := range orders {
		numbers[i] = orders[i].Number
		index[orders[i].Number] = i
	}

	rows, err := q.Query(ctx, listOrderItemsSQL, numbers)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}

	var (
		number string
		it     order.Item
	)
	_, err = pgx.ForEachRow(rows,
		[]any{&number, &it.MenuItemID, &it.Name, &it.UnitPrice, &it.Quantity, &it.Size, &it.Customize},
		func() error {
			i := index[number]
			orders[i].Items = append(orders[i].Items, it)
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		status        string
		orderType     string
		paymentMethod *string
		offerID       *string
		promised      *time.Time
		paidAt        *time.Time
	)
	err := row.Scan(
		&o.Number, &o.UserID, &status, &o.Subtotal, &o.Discount, &o.TotalAmount, &o.CreditPointsUsed,
		&o.CustomerName, &promised, &orderType, &paymentMethod, &paidAt, &offerID, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	o.OrderType = order.Type(orderType)
	o.PaymentMethod = order.PaymentMethod(derefString(paymentMethod))
	o.OfferID = derefString(offerID)
	o.PromisedTime = promised
	o.PaidAt = paidAt
	return o, err
}
