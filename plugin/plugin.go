// Package plugin provides an extensible plugin system for the credit ledger.
// Plugins hook into lifecycle events that fire after a unit of work commits.
package plugin

import (
	"context"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Funds hooks
// ──────────────────────────────────────────────────

// OnAccountFilled is called after credits are minted into an asset account.
type OnAccountFilled interface {
	Plugin
	OnAccountFilled(ctx context.Context, orgID string, accountID id.AccountID, amount int64) error
}

// OnCreditsWithdrawn is called after credits are returned to the platform.
type OnCreditsWithdrawn interface {
	Plugin
	OnCreditsWithdrawn(ctx context.Context, orgID string, accountID id.AccountID, amount int64) error
}

// OnInsufficientBalance is called when a withdrawal or lease is rejected
// for lack of credits.
type OnInsufficientBalance interface {
	Plugin
	OnInsufficientBalance(ctx context.Context, orgID string, available, required int64) error
}

// ──────────────────────────────────────────────────
// Lease hooks
// ──────────────────────────────────────────────────

// OnLeaseAcquired is called after a lease reserves credits.
type OnLeaseAcquired interface {
	Plugin
	OnLeaseAcquired(ctx context.Context, orgID string, leaseID id.LeaseID, allocations []transaction.Allocation) error
}

// OnLeaseCanceled is called after a lease is canceled and fully refunded.
type OnLeaseCanceled interface {
	Plugin
	OnLeaseCanceled(ctx context.Context, orgID string, leaseID id.LeaseID, refunded int64) error
}

// OnLeaseFinalized is called after metered consumption closes a lease.
type OnLeaseFinalized interface {
	Plugin
	OnLeaseFinalized(ctx context.Context, orgID string, leaseID id.LeaseID, consumed, refunded int64) error
}

// OnLeaseAlreadyClosed is called when cancel or finalize hits a closed lease.
type OnLeaseAlreadyClosed interface {
	Plugin
	OnLeaseAlreadyClosed(ctx context.Context, orgID string, leaseID id.LeaseID) error
}
