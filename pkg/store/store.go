// Package store provides database plumbing shared by the SQL-backed stores:
// URL-based driver selection (Postgres via lib/pq, SQLite via modernc) and a
// context-carried transaction so multiple stores can participate in one
// atomic unit. Mandate replacement relies on this: the mandate flip and its
// two ledger events are durable together or not at all.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

// TimeFormat is the storage layout for timestamp columns. The fractional
// second is fixed-width, unlike RFC3339Nano which trims trailing zeros:
// a trimmed "…:00Z" would sort lexically after "…:00.5Z" and break the
// ORDER BY and >= comparisons the stores run on these TEXT columns.
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in UTC in the storage layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime reads a stored timestamp. It also accepts trimmed fractional
// seconds, so rows written before the fixed-width layout still load.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Open opens a database handle from a URL. "postgres://..." selects lib/pq;
// anything else is treated as a SQLite DSN (path or "file:...").
func Open(databaseURL string) (*sql.DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		driver = "postgres"
	}
	db, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	return db, nil
}

// Querier is the subset of *sql.DB / *sql.Tx the stores use.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// Runner returns the transaction carried by ctx, or db when none is.
func Runner(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// Atomic runs fn as one atomic unit. SQLAtomic implements it with a real
// transaction; NoTx is for in-memory backends.
type Atomic func(ctx context.Context, fn func(context.Context) error) error

// SQLAtomic returns an Atomic that wraps fn in a database transaction and
// threads it through context for every Runner call underneath.
func SQLAtomic(db *sql.DB) Atomic {
	return func(ctx context.Context, fn func(context.Context) error) error {
		if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
			// Already inside a transaction; join it.
			return fn(ctx)
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	}
}

// NoTx runs fn directly. In-memory stores are already linearized by their
// own locks.
func NoTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
