// Package postgres implements store.Store on PostgreSQL through the pgx
// database/sql driver. Units of work take a transaction-scoped advisory
// lock on the organization.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/sqlstore"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// uniqueViolation is the SQLSTATE of unique_violation.
const uniqueViolation = "23505"

// Store implements store.Store using PostgreSQL.
type Store struct {
	*sqlstore.Store
}

// New creates a store over an open pgx-backed database.
func New(db *sql.DB) *Store {
	return &Store{Store: sqlstore.New(db, Dialect())}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("credits/postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // the ping error is reported
		return nil, fmt.Errorf("credits/postgres: ping: %w", err)
	}
	return New(db), nil
}

// Dialect returns the PostgreSQL dialect.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:     "credits/postgres",
		Numbered: true,
		LockOrg:  `SELECT pg_advisory_xact_lock(hashtextextended(?, 0))`,
		JSONText: func(column string) string { return column + "::text" },
		// jsonb_exists backs the ? operator, which would clash with
		// placeholder rebinding.
		HasKey: func(column string) string { return "jsonb_exists(" + column + ", ?)" },
		// TIMESTAMPTZ keeps microseconds; truncate rather than let the
		// server round a row past the instant it was written at.
		Time:              func(t time.Time) any { return t.UTC().Truncate(time.Microsecond) },
		IsUniqueViolation: isUniqueViolation,
		Migrations:        Migrations,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
