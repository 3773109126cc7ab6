package extension

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/store/sqlite"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{LockTries: 3})

	assert.Equal(t, "memory", cfg.Driver)
	assert.Equal(t, "credits", cfg.Database)
	assert.Equal(t, 10*time.Second, cfg.LockExpiry)
	assert.Equal(t, 3, cfg.LockTries)
	assert.Equal(t, 100*time.Millisecond, cfg.LockRetryDelay)
}

func TestMergeConfigurations(t *testing.T) {
	file := Config{Driver: "postgres", DSN: "postgres://file", LockTries: 8}
	programmatic := Config{
		Driver:         "sqlite",
		DSN:            "ignored.db",
		DisableMigrate: true,
		RedisAddr:      "localhost:6379",
		ResourceUnits:  []string{"image"},
	}

	cfg := mergeConfigurations(file, programmatic)

	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, "postgres://file", cfg.DSN)
	assert.True(t, cfg.DisableMigrate)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 8, cfg.LockTries)
	assert.Equal(t, []string{"image"}, cfg.ResourceUnits)
	assert.Equal(t, 10*time.Second, cfg.LockExpiry)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"Defaults", DefaultConfig(), false},
		{"SQLite", Config{Driver: "sqlite", DSN: "credits.db"}, false},
		{"MissingDSN", Config{Driver: "postgres"}, true},
		{"UnknownDriver", Config{Driver: "cassandra", DSN: "x"}, true},
		{"BadRedisAddr", Config{Driver: "memory", RedisAddr: "no-port"}, true},
		{"NegativeTries", Config{Driver: "memory", LockTries: -1}, true},
		{"EmptyUnit", Config{Driver: "memory", ResourceUnits: []string{""}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOpenBuildsStoreAndLocker(t *testing.T) {
	mr := miniredis.RunT(t)

	e := New(
		WithDriver("sqlite", filepath.Join(t.TempDir(), "credits.db")),
		WithRedisAddr(mr.Addr()),
		WithLockTiming(time.Second, 2, 10*time.Millisecond),
		WithResourceUnits("image", "frame"),
	)
	e.config = mergeWithDefaults(e.config)
	require.NoError(t, e.config.Validate())
	require.NoError(t, e.open())
	t.Cleanup(func() {
		_ = e.store.Close()
		_ = e.redis.Close()
	})

	assert.IsType(t, &sqlite.Store{}, e.store)
	require.NotNil(t, e.locker)
	assert.Len(t, e.buildLedgerOpts(), 2)
}

func TestOpenKeepsInjectedStore(t *testing.T) {
	s := memory.New()
	e := New(WithStore(s), WithDriver("postgres", "postgres://unused"))
	e.config = mergeWithDefaults(e.config)

	require.NoError(t, e.open())
	assert.Same(t, s, e.store)
	assert.Nil(t, e.locker)
	assert.Empty(t, e.buildLedgerOpts())
}
