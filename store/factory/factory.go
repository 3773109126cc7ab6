// Package factory opens a store.Store backend by driver name.
package factory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/store/mongo"
	"github.com/xraph/credits/store/postgres"
	"github.com/xraph/credits/store/sqlite"
)

// Driver names a storage backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
	DriverMongo    Driver = "mongo"
)

// ErrUnknownDriver is returned for a driver name Open does not support.
var ErrUnknownDriver = errors.New("credits/factory: unknown driver")

// Config selects and addresses a backend.
type Config struct {
	Driver Driver
	// DSN is the postgres connection string, the sqlite file path or the
	// mongo URI. The memory driver ignores it.
	DSN string
	// Database is the mongo database name.
	Database string
}

// ParseDriver accepts the driver names and their common aliases.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "memory", "mem":
		return DriverMemory, nil
	case "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "mongo", "mongodb":
		return DriverMongo, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDriver, s)
}

// Open connects to the configured backend. It does not migrate.
func Open(ctx context.Context, cfg Config) (store.Store, error) {
	driver, err := ParseDriver(string(cfg.Driver))
	if err != nil {
		return nil, err
	}
	if driver != DriverMemory && cfg.DSN == "" {
		return nil, fmt.Errorf("credits/factory: %s requires a dsn", driver)
	}

	var (
		s       store.Store
		openErr error
	)
	switch driver {
	case DriverPostgres:
		s, openErr = asStore(postgres.Open(ctx, cfg.DSN))
	case DriverSQLite:
		s, openErr = asStore(sqlite.Open(ctx, cfg.DSN))
	case DriverMongo:
		if cfg.Database == "" {
			return nil, errors.New("credits/factory: mongo requires a database name")
		}
		s, openErr = asStore(mongo.Open(ctx, cfg.DSN, cfg.Database))
	default:
		s = memory.New()
	}
	if openErr != nil {
		return nil, openErr
	}
	return s, nil
}

// asStore keeps a failed open from leaking a typed nil into the interface.
func asStore[S store.Store](s S, err error) (store.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
