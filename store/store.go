// Package store defines the persistence contract of the credit ledger.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
)

// Store is the unified storage interface for all ledger entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to keep backends greppable.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error)
	GetPlatformAccount(ctx context.Context) (*account.Account, error)
	GetLeaseAccount(ctx context.Context, orgID string) (*account.Account, error)
	ListAccounts(ctx context.Context, orgID string, opts account.ListOpts) ([]*account.Account, error)

	// Ledger read methods
	ListTransactions(ctx context.Context, f transaction.Filter) ([]*transaction.Transaction, int, error)
	ListGroup(ctx context.Context, groupID id.LeaseID) ([]*transaction.Transaction, error)
	Totals(ctx context.Context, accountIDs []id.AccountID, asOf time.Time) (map[id.AccountID]transaction.Totals, error)
	OpenLeaseHolds(ctx context.Context, leaseAccountID id.AccountID) (map[id.AccountID]int64, error)

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	GetSubscriptionByOrganization(ctx context.Context, orgID string) (*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscriptionByLeaseID(ctx context.Context, leaseID id.LeaseID) (*subscription.Subscription, error)

	// Begin opens an atomic unit of work and takes the backend's advisory
	// lock on the organization. The lock is held until Commit or Rollback.
	Begin(ctx context.Context, orgID string) (Tx, error)

	// Lifecycle methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is an atomic unit of work. Reads observe the unit's own writes.
// Nothing it writes is visible to other readers before Commit.
type Tx interface {
	GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error)
	GetPlatformAccount(ctx context.Context) (*account.Account, error)
	GetLeaseAccount(ctx context.Context, orgID string) (*account.Account, error)
	ListAccounts(ctx context.Context, orgID string, opts account.ListOpts) ([]*account.Account, error)

	InsertTransactions(ctx context.Context, rows ...*transaction.Transaction) error
	// GroupBalance is the running balance of accountID over the rows of a group.
	GroupBalance(ctx context.Context, groupID id.LeaseID, accountID id.AccountID) (int64, error)
	// ListGroup returns a group's rows ordered by line then account.
	ListGroup(ctx context.Context, groupID id.LeaseID) ([]*transaction.Transaction, error)

	Commit() error
	Rollback() error
}

var (
	_ account.Store      = Store(nil)
	_ transaction.Store  = Store(nil)
	_ subscription.Store = Store(nil)
)

// ErrTxDone is returned when a finished unit of work is used again.
var ErrTxDone = errors.New("store: transaction already committed or rolled back")
