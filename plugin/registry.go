package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
)

const defaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so dispatch never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onAccountFilled       []OnAccountFilled
	onCreditsWithdrawn    []OnCreditsWithdrawn
	onInsufficientBalance []OnInsufficientBalance
	onLeaseAcquired       []OnLeaseAcquired
	onLeaseCanceled       []OnLeaseCanceled
	onLeaseFinalized      []OnLeaseFinalized
	onLeaseAlreadyClosed  []OnLeaseAlreadyClosed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: defaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout bounds each hook call.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountFilled); ok {
		r.onAccountFilled = append(r.onAccountFilled, v)
	}
	if v, ok := p.(OnCreditsWithdrawn); ok {
		r.onCreditsWithdrawn = append(r.onCreditsWithdrawn, v)
	}
	if v, ok := p.(OnInsufficientBalance); ok {
		r.onInsufficientBalance = append(r.onInsufficientBalance, v)
	}
	if v, ok := p.(OnLeaseAcquired); ok {
		r.onLeaseAcquired = append(r.onLeaseAcquired, v)
	}
	if v, ok := p.(OnLeaseCanceled); ok {
		r.onLeaseCanceled = append(r.onLeaseCanceled, v)
	}
	if v, ok := p.(OnLeaseFinalized); ok {
		r.onLeaseFinalized = append(r.onLeaseFinalized, v)
	}
	if v, ok := p.(OnLeaseAlreadyClosed); ok {
		r.onLeaseAlreadyClosed = append(r.onLeaseAlreadyClosed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

// hookTypes lists every hook interface for registration logging.
var hookTypes = []struct {
	name  string
	iface reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnAccountFilled", reflect.TypeOf((*OnAccountFilled)(nil)).Elem()},
	{"OnCreditsWithdrawn", reflect.TypeOf((*OnCreditsWithdrawn)(nil)).Elem()},
	{"OnInsufficientBalance", reflect.TypeOf((*OnInsufficientBalance)(nil)).Elem()},
	{"OnLeaseAcquired", reflect.TypeOf((*OnLeaseAcquired)(nil)).Elem()},
	{"OnLeaseCanceled", reflect.TypeOf((*OnLeaseCanceled)(nil)).Elem()},
	{"OnLeaseFinalized", reflect.TypeOf((*OnLeaseFinalized)(nil)).Elem()},
	{"OnLeaseAlreadyClosed", reflect.TypeOf((*OnLeaseAlreadyClosed)(nil)).Elem()},
}

func implementedInterfaces(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.iface) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission
// ──────────────────────────────────────────────────

// EmitInit notifies all OnInit plugins.
func (r *Registry) EmitInit(ctx context.Context, l interface{}) {
	emit(r, ctx, "OnInit", func() []OnInit { return r.onInit }, func(p OnInit) error {
		return p.OnInit(ctx, l)
	})
}

// EmitShutdown notifies all OnShutdown plugins.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, ctx, "OnShutdown", func() []OnShutdown { return r.onShutdown }, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitAccountFilled notifies all OnAccountFilled plugins.
func (r *Registry) EmitAccountFilled(ctx context.Context, orgID string, accountID id.AccountID, amount int64) {
	emit(r, ctx, "OnAccountFilled", func() []OnAccountFilled { return r.onAccountFilled }, func(p OnAccountFilled) error {
		return p.OnAccountFilled(ctx, orgID, accountID, amount)
	})
}

// EmitCreditsWithdrawn notifies all OnCreditsWithdrawn plugins.
func (r *Registry) EmitCreditsWithdrawn(ctx context.Context, orgID string, accountID id.AccountID, amount int64) {
	emit(r, ctx, "OnCreditsWithdrawn", func() []OnCreditsWithdrawn { return r.onCreditsWithdrawn }, func(p OnCreditsWithdrawn) error {
		return p.OnCreditsWithdrawn(ctx, orgID, accountID, amount)
	})
}

// EmitInsufficientBalance notifies all OnInsufficientBalance plugins.
func (r *Registry) EmitInsufficientBalance(ctx context.Context, orgID string, available, required int64) {
	emit(r, ctx, "OnInsufficientBalance", func() []OnInsufficientBalance { return r.onInsufficientBalance }, func(p OnInsufficientBalance) error {
		return p.OnInsufficientBalance(ctx, orgID, available, required)
	})
}

// EmitLeaseAcquired notifies all OnLeaseAcquired plugins.
func (r *Registry) EmitLeaseAcquired(ctx context.Context, orgID string, leaseID id.LeaseID, allocations []transaction.Allocation) {
	emit(r, ctx, "OnLeaseAcquired", func() []OnLeaseAcquired { return r.onLeaseAcquired }, func(p OnLeaseAcquired) error {
		return p.OnLeaseAcquired(ctx, orgID, leaseID, allocations)
	})
}

// EmitLeaseCanceled notifies all OnLeaseCanceled plugins.
func (r *Registry) EmitLeaseCanceled(ctx context.Context, orgID string, leaseID id.LeaseID, refunded int64) {
	emit(r, ctx, "OnLeaseCanceled", func() []OnLeaseCanceled { return r.onLeaseCanceled }, func(p OnLeaseCanceled) error {
		return p.OnLeaseCanceled(ctx, orgID, leaseID, refunded)
	})
}

// EmitLeaseFinalized notifies all OnLeaseFinalized plugins.
func (r *Registry) EmitLeaseFinalized(ctx context.Context, orgID string, leaseID id.LeaseID, consumed, refunded int64) {
	emit(r, ctx, "OnLeaseFinalized", func() []OnLeaseFinalized { return r.onLeaseFinalized }, func(p OnLeaseFinalized) error {
		return p.OnLeaseFinalized(ctx, orgID, leaseID, consumed, refunded)
	})
}

// EmitLeaseAlreadyClosed notifies all OnLeaseAlreadyClosed plugins.
func (r *Registry) EmitLeaseAlreadyClosed(ctx context.Context, orgID string, leaseID id.LeaseID) {
	emit(r, ctx, "OnLeaseAlreadyClosed", func() []OnLeaseAlreadyClosed { return r.onLeaseAlreadyClosed }, func(p OnLeaseAlreadyClosed) error {
		return p.OnLeaseAlreadyClosed(ctx, orgID, leaseID)
	})
}

// emit snapshots the cached hook list and calls each plugin in turn.
// Failures are logged, never returned: hooks run after commit.
func emit[T Plugin](r *Registry, ctx context.Context, hook string, cached func() []T, call func(T) error) { //nolint:revive // registry first reads better at call sites
	r.mu.RLock()
	list := cached()
	plugins := make([]T, len(list))
	copy(plugins, list)
	timeout := r.timeout
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := callWithTimeout(ctx, timeout, p.Name(), func() error { return call(p) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger.
func callWithTimeout(ctx context.Context, timeout time.Duration, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
