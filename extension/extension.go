// Package extension provides the Forge extension adapter for the credit
// ledger.
//
// It implements the forge.Extension interface to integrate the ledger
// into a Forge application with store construction, DI registration,
// and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.credits" or "credits" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/credits"
	"github.com/xraph/credits/lock"
	"github.com/xraph/credits/lock/redislock"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/factory"
	"github.com/xraph/credits/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "credits"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Credit ledger with leased usage reservations"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// openTimeout bounds connecting to the configured store during Register.
const openTimeout = 30 * time.Second

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the credit ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *credits.Ledger
	store      store.Store
	locker     lock.Locker
	redis      *redis.Client
	ledgerOpts []credits.Option
}

// New creates a new credits Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying ledger.
// This is nil until Register is called.
func (e *Extension) Engine() *credits.Ledger { return e.engine }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration, opens the
// store and optional redis lock, and registers the ledger in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}
	if err := e.config.Validate(); err != nil {
		return fmt.Errorf("credits: invalid configuration: %w", err)
	}

	if err := e.open(); err != nil {
		return err
	}

	e.engine = credits.New(e.store, e.buildLedgerOpts()...)

	return vessel.Provide(fapp.Container(), func() (*credits.Ledger, error) {
		return e.engine, nil
	})
}

// open builds the store and locker from config unless they were injected.
func (e *Extension) open() error {
	if e.store == nil {
		ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
		defer cancel()

		s, err := factory.Open(ctx, factory.Config{
			Driver:   factory.Driver(e.config.Driver),
			DSN:      e.config.DSN,
			Database: e.config.Database,
		})
		if err != nil {
			return fmt.Errorf("credits: open store: %w", err)
		}
		e.store = s
	}

	if e.locker == nil && e.config.RedisAddr != "" {
		e.redis = redis.NewClient(&redis.Options{Addr: e.config.RedisAddr})

		opts := redislock.DefaultOptions()
		opts.Expiry = e.config.LockExpiry
		opts.Tries = e.config.LockTries
		opts.RetryDelay = e.config.LockRetryDelay

		lk, err := redislock.New(e.redis, opts)
		if err != nil {
			_ = e.redis.Close() //nolint:errcheck // the option error is reported
			return fmt.Errorf("credits: redis lock: %w", err)
		}
		e.locker = lk
	}
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("credits: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	defer e.MarkStopped()

	var errs []error
	if e.engine != nil {
		errs = append(errs, e.engine.Stop())
	}
	if e.redis != nil {
		errs = append(errs, e.redis.Close())
	}
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("credits: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.redis != nil {
		return e.redis.Ping(ctx).Err()
	}
	return nil
}

// buildLedgerOpts constructs credits.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []credits.Option {
	opts := make([]credits.Option, 0, len(e.ledgerOpts)+2)

	if e.locker != nil {
		opts = append(opts, credits.WithLocker(e.locker))
	}

	if len(e.config.ResourceUnits) > 0 {
		units := make([]types.Unit, len(e.config.ResourceUnits))
		for i, u := range e.config.ResourceUnits {
			units[i] = types.Unit(u)
		}
		opts = append(opts, credits.WithResourceUnits(units...))
	}

	// Append any pass-through ledger options.
	opts = append(opts, e.ledgerOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("credits: configuration is required but not found in config files; " +
				"ensure 'extensions.credits' or 'credits' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("credits: configuration loaded",
		forge.F("driver", e.config.Driver),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("distributed_lock", e.config.RedisAddr != ""),
		forge.F("lock_expiry", e.config.LockExpiry),
		forge.F("lock_tries", e.config.LockTries),
		forge.F("resource_units", e.config.ResourceUnits),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.credits" first (namespaced pattern).
	if cm.IsSet("extensions.credits") {
		if err := cm.Bind("extensions.credits", &cfg); err == nil {
			e.Logger().Debug("credits: loaded config from file",
				forge.F("key", "extensions.credits"),
			)
			return cfg, true
		}
		e.Logger().Warn("credits: failed to bind extensions.credits config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "credits" key.
	if cm.IsSet("credits") {
		if err := cm.Bind("credits", &cfg); err == nil {
			e.Logger().Debug("credits: loaded config from file",
				forge.F("key", "credits"),
			)
			return cfg, true
		}
		e.Logger().Warn("credits: failed to bind credits config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.Database == "" {
		cfg.Database = defaults.Database
	}
	if cfg.LockExpiry == 0 {
		cfg.LockExpiry = defaults.LockExpiry
	}
	if cfg.LockTries == 0 {
		cfg.LockTries = defaults.LockTries
	}
	if cfg.LockRetryDelay == 0 {
		cfg.LockRetryDelay = defaults.LockRetryDelay
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Driver == "" && programmaticConfig.Driver != "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.DSN == "" && programmaticConfig.DSN != "" {
		yamlConfig.DSN = programmaticConfig.DSN
	}
	if yamlConfig.Database == "" && programmaticConfig.Database != "" {
		yamlConfig.Database = programmaticConfig.Database
	}
	if yamlConfig.RedisAddr == "" && programmaticConfig.RedisAddr != "" {
		yamlConfig.RedisAddr = programmaticConfig.RedisAddr
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.LockExpiry == 0 && programmaticConfig.LockExpiry != 0 {
		yamlConfig.LockExpiry = programmaticConfig.LockExpiry
	}
	if yamlConfig.LockTries == 0 && programmaticConfig.LockTries != 0 {
		yamlConfig.LockTries = programmaticConfig.LockTries
	}
	if yamlConfig.LockRetryDelay == 0 && programmaticConfig.LockRetryDelay != 0 {
		yamlConfig.LockRetryDelay = programmaticConfig.LockRetryDelay
	}
	if len(yamlConfig.ResourceUnits) == 0 && len(programmaticConfig.ResourceUnits) > 0 {
		yamlConfig.ResourceUnits = programmaticConfig.ResourceUnits
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
