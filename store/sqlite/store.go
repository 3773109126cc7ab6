// Package sqlite implements store.Store on an SQLite file through the pure
// Go modernc driver. SQLite has a single writer, so units of work begin
// IMMEDIATE transactions and serialize per organization in process.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/sqlstore"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// defaultParams are appended to bare file paths passed to Open.
const defaultParams = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

// Store implements store.Store using SQLite.
type Store struct {
	*sqlstore.Store
}

// New creates a store over an open modernc-backed database.
func New(db *sql.DB) *Store {
	return &Store{Store: sqlstore.New(db, Dialect())}
}

// Open opens the database at path. A bare path gets WAL journaling, a busy
// timeout, foreign keys and immediate transactions; a path that already
// carries query parameters is used as given.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("credits/sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // the ping error is reported
		return nil, fmt.Errorf("credits/sqlite: ping: %w", err)
	}
	return New(db), nil
}

// DSN builds the driver data source name for path.
func DSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + "?" + defaultParams
}

// Dialect returns the SQLite dialect. Timestamps are stored as unix
// nanoseconds so range predicates compare integers.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:      "credits/sqlite",
		LocalLock: true,
		HasKey: func(column string) string {
			return "EXISTS (SELECT 1 FROM json_each(" + column + ") WHERE json_each.key = ?)"
		},
		Time:              func(t time.Time) any { return t.UnixNano() },
		IsUniqueViolation: isUniqueViolation,
		Migrations:        Migrations,
	}
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
