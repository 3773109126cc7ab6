package factory_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits/store/factory"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/store/sqlite"
)

func TestParseDriver(t *testing.T) {
	tests := []struct {
		in   string
		want factory.Driver
	}{
		{"", factory.DriverMemory},
		{"PG", factory.DriverPostgres},
		{"postgresql", factory.DriverPostgres},
		{"sqlite3", factory.DriverSQLite},
		{" mongodb ", factory.DriverMongo},
	}
	for _, tt := range tests {
		got, err := factory.ParseDriver(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := factory.ParseDriver("cassandra")
	assert.ErrorIs(t, err, factory.ErrUnknownDriver)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := factory.Open(ctx, factory.Config{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	s, err = factory.Open(ctx, factory.Config{
		Driver: factory.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "credits.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.IsType(t, &sqlite.Store{}, s)
	require.NoError(t, s.Migrate(ctx))

	_, err = factory.Open(ctx, factory.Config{Driver: factory.DriverPostgres})
	assert.ErrorContains(t, err, "requires a dsn")

	_, err = factory.Open(ctx, factory.Config{Driver: factory.DriverMongo, DSN: "mongodb://localhost:27017"})
	assert.ErrorContains(t, err, "database name")
}
