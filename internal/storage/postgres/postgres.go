// Package postgres implements the domain repositories on PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/cafe-orders/db"
	"github.com/xenking/cafe-orders/internal/domain/order"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type txKey struct{}

// conn returns the transaction carried by ctx, or the pool.
func conn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// inTx runs fn in the transaction carried by ctx, or in a new one.
func inTx(ctx context.Context, pool *pgxpool.Pool, fn func(q querier) error) error {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(tx)
	}
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

const lockUserSQL = `SELECT pg_advisory_xact_lock(hashtext($1))`

// defaultTxAttempts bounds reruns after serialization failures.
const defaultTxAttempts = 3

var _ order.Transactor = (*Transactor)(nil)

// Transactor runs units of work in serializable transactions that hold a
// per-user advisory lock, so read-balance-then-write sequences for one user
// never interleave.
type Transactor struct {
	pool     *pgxpool.Pool
	tracer   trace.Tracer
	attempts int
}

// NewTransactor creates a Transactor. A nil tp uses the global provider.
func NewTransactor(pool *pgxpool.Pool, tp trace.TracerProvider) *Transactor {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Transactor{
		pool:     pool,
		tracer:   tp.Tracer("github.com/xenking/cafe-orders/internal/storage/postgres"),
		attempts: defaultTxAttempts,
	}
}

// InUserTx implements order.Transactor. fn may run more than once when the
// transaction hits a serialization failure; after the last attempt the
// failure is reported as order.ErrConflict. A ctx that already carries a
// transaction is reused as is.
func (t *Transactor) InUserTx(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	ctx, span := t.tracer.Start(ctx, "postgres.InUserTx",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	var err error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		err = pgx.BeginTxFunc(ctx, t.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, lockUserSQL, userID); err != nil {
				return fmt.Errorf("locking ledger of %q: %w", userID, err)
			}
			return fn(context.WithValue(ctx, txKey{}, tx))
		})
		if !isSerializationFailure(err) {
			break
		}
		span.AddEvent("serialization failure", trace.WithAttributes(attribute.Int("attempt", attempt)))
	}

	if isSerializationFailure(err) {
		err = errors.Wrap(order.ErrConflict, err.Error())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction failed")
	}
	return err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected.
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
