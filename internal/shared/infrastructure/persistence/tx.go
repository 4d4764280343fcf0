// Package persistence carries database transactions through context so that
// repositories and the outbox share one unit of work.
package persistence

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type txKey[T comparable] struct{}

// CarriedTx is a transaction travelling in a context. Owned marks the unit
// of work that began it and must end it.
type CarriedTx[T comparable] struct {
	Tx    T
	Owned bool
}

type (
	TxInfo       = CarriedTx[pgx.Tx]
	SQLiteTxInfo = CarriedTx[*sql.Tx]
)

func carry[T comparable](ctx context.Context, tx T, owned bool) context.Context {
	return context.WithValue(ctx, txKey[T]{}, CarriedTx[T]{Tx: tx, Owned: owned})
}

func carried[T comparable](ctx context.Context) (CarriedTx[T], bool) {
	var none T
	info, ok := ctx.Value(txKey[T]{}).(CarriedTx[T])
	if !ok || info.Tx == none {
		return CarriedTx[T]{}, false
	}
	return info, true
}

func WithTx(ctx context.Context, tx pgx.Tx, owned bool) context.Context {
	return carry(ctx, tx, owned)
}

func TxInfoFromContext(ctx context.Context) (TxInfo, bool) {
	return carried[pgx.Tx](ctx)
}

func WithSQLiteTx(ctx context.Context, tx *sql.Tx, owned bool) context.Context {
	return carry(ctx, tx, owned)
}

func SQLiteTxInfoFromContext(ctx context.Context) (SQLiteTxInfo, bool) {
	return carried[*sql.Tx](ctx)
}

// PgExecutor is the query surface shared by pgxpool.Pool and pgx.Tx.
type PgExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Executor returns the transaction in ctx when present, otherwise the pool.
func Executor(ctx context.Context, pool *pgxpool.Pool) PgExecutor {
	if info, ok := TxInfoFromContext(ctx); ok {
		return info.Tx
	}
	return pool
}

// SQLExecutor is the query surface shared by *sql.DB and *sql.Tx.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteExecutor returns the transaction in ctx when present, otherwise db.
func SQLiteExecutor(ctx context.Context, db *sql.DB) SQLExecutor {
	if info, ok := SQLiteTxInfoFromContext(ctx); ok {
		return info.Tx
	}
	return db
}
