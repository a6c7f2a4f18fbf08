// Package postgres is the PostgreSQL implementation of the study, library
// and importer stores.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/conorfennell/skillcards/internal/errs"
	"github.com/conorfennell/skillcards/internal/importer"
	"github.com/conorfennell/skillcards/internal/library"
	"github.com/conorfennell/skillcards/internal/migrations"
	"github.com/conorfennell/skillcards/internal/study"
)

var (
	_ study.CardStore      = (*DB)(nil)
	_ study.ProgressStore  = (*DB)(nil)
	_ study.PriorityStore  = (*DB)(nil)
	_ library.Store        = (*DB)(nil)
	_ importer.SourceStore = (*DB)(nil)
)

// PgxPool is the part of *pgxpool.Pool the stores use. pgxmock's pool
// implements it too.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// DB wraps a connection pool.
type DB struct{ Pool PgxPool }

// New migrates the schema and opens a connection pool for the DSN.
func New(ctx context.Context, dsn string, log *zap.Logger) (*DB, error) {
	if err := Migrate(ctx, dsn, log); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Migrate runs the embedded migrations over a short-lived database/sql
// connection.
func Migrate(ctx context.Context, dsn string, log *zap.Logger) error {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer conn.Close()
	return migrations.Up(ctx, conn, "postgres", log)
}

// Close closes the underlying pool.
func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// withTx runs fn in a transaction, rolling back when it fails.
func (db *DB) withTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()
	return fn(tx)
}

// isUniqueViolation reports whether the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}

func wrapNotFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, errs.ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func expectRow(tag pgconn.CommandTag, format string, args ...any) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf(format+": %w", append(args, errs.ErrNotFound)...)
	}
	return nil
}
