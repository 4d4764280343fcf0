package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var errNoTransaction = errors.New("no transaction in context")

// Each unit of work joins a transaction already carried by ctx instead of
// nesting one. Only the unit that began the transaction ends it, so a
// command handler can wrap repository calls that open their own units.

// PostgresUnitOfWork runs units of work on a pgx pool.
type PostgresUnitOfWork struct {
	pool    *pgxpool.Pool
	options pgx.TxOptions
}

// NewPostgresUnitOfWork creates a unit of work with read-committed
// transactions.
func NewPostgresUnitOfWork(pool *pgxpool.Pool) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{
		pool:    pool,
		options: pgx.TxOptions{IsoLevel: pgx.ReadCommitted},
	}
}

func (u *PostgresUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if info, ok := TxInfoFromContext(ctx); ok {
		return WithTx(ctx, info.Tx, false), nil
	}
	tx, err := u.pool.BeginTx(ctx, u.options)
	if err != nil {
		return nil, fmt.Errorf("begin postgres transaction: %w", err)
	}
	return WithTx(ctx, tx, true), nil
}

func (u *PostgresUnitOfWork) Commit(ctx context.Context) error {
	info, ok := TxInfoFromContext(ctx)
	return end(ok, info.Owned, func() error { return info.Tx.Commit(ctx) }, nil)
}

func (u *PostgresUnitOfWork) Rollback(ctx context.Context) error {
	info, ok := TxInfoFromContext(ctx)
	return end(ok, info.Owned, func() error { return info.Tx.Rollback(ctx) }, pgx.ErrTxClosed)
}

// SQLiteUnitOfWork runs units of work on a database/sql handle.
type SQLiteUnitOfWork struct {
	db *sql.DB
}

func NewSQLiteUnitOfWork(db *sql.DB) *SQLiteUnitOfWork {
	return &SQLiteUnitOfWork{db: db}
}

func (u *SQLiteUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if info, ok := SQLiteTxInfoFromContext(ctx); ok {
		return WithSQLiteTx(ctx, info.Tx, false), nil
	}
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sqlite transaction: %w", err)
	}
	return WithSQLiteTx(ctx, tx, true), nil
}

func (u *SQLiteUnitOfWork) Commit(ctx context.Context) error {
	info, ok := SQLiteTxInfoFromContext(ctx)
	return end(ok, info.Owned, func() error { return info.Tx.Commit() }, nil)
}

func (u *SQLiteUnitOfWork) Rollback(ctx context.Context) error {
	info, ok := SQLiteTxInfoFromContext(ctx)
	return end(ok, info.Owned, func() error { return info.Tx.Rollback() }, sql.ErrTxDone)
}

// end finishes an owned transaction. When done is non-nil, an error
// matching it counts as finished; rollbacks pass the driver's closed-tx error.
func end(found, owned bool, finish func() error, done error) error {
	if !found {
		return errNoTransaction
	}
	if !owned {
		return nil
	}
	if err := finish(); err != nil && !errors.Is(err, done) {
		return err
	}
	return nil
}
