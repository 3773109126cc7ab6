package extension

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the credits extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.credits" or "credits" keys).
type Config struct {
	// Driver selects the store backend: memory, postgres, sqlite or mongo
	// (default: memory).
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver" validate:"omitempty,oneof=memory postgres sqlite mongo"`

	// DSN is the postgres connection string, sqlite file path or mongo URI.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn" validate:"required_unless=Driver memory"`

	// Database is the mongo database name (default: "credits").
	Database string `json:"database" mapstructure:"database" yaml:"database"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// RedisAddr enables the distributed organization lock when set.
	RedisAddr string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr" validate:"omitempty,hostname_port"`

	// LockExpiry bounds how long a crashed holder keeps an organization
	// locked (default: 10s).
	LockExpiry time.Duration `json:"lock_expiry" mapstructure:"lock_expiry" yaml:"lock_expiry" validate:"gte=0"`

	// LockTries is the number of redis lock attempts (default: 32).
	LockTries int `json:"lock_tries" mapstructure:"lock_tries" yaml:"lock_tries" validate:"gte=0"`

	// LockRetryDelay is the wait between redis lock attempts (default: 100ms).
	LockRetryDelay time.Duration `json:"lock_retry_delay" mapstructure:"lock_retry_delay" yaml:"lock_retry_delay" validate:"gte=0"`

	// ResourceUnits restricts the accepted resource units. Empty accepts
	// every well-formed unit.
	ResourceUnits []string `json:"resource_units" mapstructure:"resource_units" yaml:"resource_units" validate:"dive,required,max=64"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:         "memory",
		Database:       "credits",
		LockExpiry:     10 * time.Second,
		LockTries:      32,
		LockRetryDelay: 100 * time.Millisecond,
	}
}

// Validate checks the resolved configuration.
func (c Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}
