package extension

import (
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/lock"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
)

// Option configures the credits Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger. It takes precedence over the
// configured driver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLocker sets the outer organization lock. It takes precedence over
// the configured redis address.
func WithLocker(lk lock.Locker) Option {
	return func(e *Extension) {
		e.locker = lk
	}
}

// WithLedgerOption passes a credits.Option through to the underlying ledger.
func WithLedgerOption(opt credits.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, credits.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDriver selects the store backend and its address.
func WithDriver(driver, dsn string) Option {
	return func(e *Extension) {
		e.config.Driver = driver
		e.config.DSN = dsn
	}
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRedisAddr enables the distributed organization lock.
func WithRedisAddr(addr string) Option {
	return func(e *Extension) { e.config.RedisAddr = addr }
}

// WithLockTiming tunes the distributed organization lock.
func WithLockTiming(expiry time.Duration, tries int, retryDelay time.Duration) Option {
	return func(e *Extension) {
		e.config.LockExpiry = expiry
		e.config.LockTries = tries
		e.config.LockRetryDelay = retryDelay
	}
}

// WithResourceUnits restricts the accepted resource units.
func WithResourceUnits(units ...string) Option {
	return func(e *Extension) { e.config.ResourceUnits = units }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
