package credits

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/credits/balance"
	"github.com/xraph/credits/lock"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/types"
)

// Ledger is the credit ledger and leasing engine. Every mutating operation
// runs under a per-organization lock inside one atomic unit of work.
type Ledger struct {
	store      store.Store
	plugins    *plugin.Registry
	logger     *slog.Logger
	calculator balance.Calculator
	subs       subscription.Repository
	locker     lock.Locker
	now        func() time.Time
	units      types.UnitSet
}

// New creates a new Ledger over the given store.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   s,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.calculator == nil {
		l.calculator = balance.NewLedgerCalculator(s, balance.WithClock(l.now))
	}
	if l.subs == nil {
		l.subs = subscription.RepositoryFunc(s.GetSubscriptionByLeaseID)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithCalculator replaces the ledger-derived balance calculator.
func WithCalculator(c balance.Calculator) Option {
	return func(l *Ledger) {
		l.calculator = c
	}
}

// WithSubscriptions replaces the store-backed lease to subscription lookup.
func WithSubscriptions(r subscription.Repository) Option {
	return func(l *Ledger) {
		l.subs = r
	}
}

// WithLocker adds a lock taken before the store's own organization lock,
// typically a distributed one shared by several processes.
func WithLocker(lk lock.Locker) Option {
	return func(l *Ledger) {
		l.locker = lk
	}
}

// WithClock overrides the ledger's notion of now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithResourceUnits restricts the accepted resource units. Without it any
// well-formed unit name is accepted.
func WithResourceUnits(units ...types.Unit) Option {
	return func(l *Ledger) {
		l.units = types.NewUnitSet(units...)
	}
}

// Start migrates the store and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("credit ledger started",
		"plugins", l.plugins.Count(),
		"distributed_lock", l.locker != nil,
	)

	return nil
}

// Stop notifies plugins and closes the store.
func (l *Ledger) Stop() error {
	l.plugins.EmitShutdown(context.Background())

	l.logger.Info("credit ledger stopped")

	return l.store.Close()
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Store {
	return l.store
}

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry {
	return l.plugins
}
