// Package storage owns the relational connection shared by the catalog, the
// notification log, the account directory and the event journal.
//
// Queries are written with '?' placeholders and rebound for the configured
// dialect, so every repository runs unchanged on PostgreSQL (production) and
// SQLite (local development and tests).
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect names a supported SQL backend. The values double as database/sql
// driver names.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

// Querier is implemented by both *DB and *Tx so repositories can run either
// standalone or inside a caller's transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a *sql.DB with its dialect.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database named by dsn. For SQLite the dsn is a file
// path; the parent directory is created if needed.
func Open(driver, dsn string) (*DB, error) {
	dialect := Dialect(driver)
	switch dialect {
	case Postgres:
		db, err := sql.Open(string(Postgres), dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &DB{db: db, dialect: dialect}, nil
	case SQLite:
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		db, err := sql.Open(string(SQLite), fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", dsn))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite allows a single writer; one connection keeps transactions
		// strictly serialized instead of failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
		return &DB{db: db, dialect: dialect}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Dialect reports the backend in use.
func (d *DB) Dialect() Dialect { return d.dialect }

// PingContext verifies the connection is alive.
func (d *DB) PingContext(ctx context.Context) error { return d.db.PingContext(ctx) }

// Close closes the underlying pool.
func (d *DB) Close() error { return d.db.Close() }

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, rebind(d.dialect, query), args...)
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, rebind(d.dialect, query), args...)
}

func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, rebind(d.dialect, query), args...)
}

// Tx is a transaction bound to the dialect of the DB that started it.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
}

// Dialect reports the backend the transaction runs on.
func (t *Tx) Dialect() Dialect { return t.dialect }

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, rebind(t.dialect, query), args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, rebind(t.dialect, query), args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, rebind(t.dialect, query), args...)
}

// WithTx runs fn inside a transaction. The transaction commits only if fn
// returns nil; any error rolls back every write fn made.
func (d *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("storage: rollback failed: %v", err)
		}
	}()

	if err := fn(&Tx{tx: tx, dialect: d.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err was caused by a unique or primary key
// constraint.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// IsSerializationFailure reports whether err means the database aborted the
// transaction to resolve contention: a detected deadlock or a serialization
// failure on PostgreSQL, a busy or locked database on SQLite.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40P01" || pqErr.Code == "40001"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// rebind rewrites '?' placeholders to PostgreSQL's positional form.
func rebind(dialect Dialect, query string) string {
	if dialect != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
