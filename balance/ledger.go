package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
)

// Reader is the slice of the store the ledger calculator reads from.
type Reader interface {
	GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error)
	GetLeaseAccount(ctx context.Context, orgID string) (*account.Account, error)
	ListAccounts(ctx context.Context, orgID string, opts account.ListOpts) ([]*account.Account, error)
	Totals(ctx context.Context, accountIDs []id.AccountID, asOf time.Time) (map[id.AccountID]transaction.Totals, error)
	OpenLeaseHolds(ctx context.Context, leaseAccountID id.AccountID) (map[id.AccountID]int64, error)
}

// LedgerCalculator computes balances by summing committed ledger rows.
// Rows dated after now count as incoming rather than available.
type LedgerCalculator struct {
	reader Reader
	now    func() time.Time
}

// Option configures a LedgerCalculator.
type Option func(*LedgerCalculator)

// WithClock overrides the calculator's notion of now.
func WithClock(now func() time.Time) Option {
	return func(c *LedgerCalculator) { c.now = now }
}

// NewLedgerCalculator returns a calculator over the given reader.
func NewLedgerCalculator(r Reader, opts ...Option) *LedgerCalculator {
	c := &LedgerCalculator{reader: r, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OrganizationBalance sums the non-expired credit accounts of the
// subscription. Blocked is the organization's lease account balance.
func (c *LedgerCalculator) OrganizationBalance(ctx context.Context, sub *subscription.Subscription) (Balance, error) {
	now := c.now()
	accounts, err := c.creditAccounts(ctx, sub, sub.OrganizationID)
	if err != nil {
		return Balance{}, err
	}

	var out Balance
	ids := make([]id.AccountID, 0, len(accounts))
	for _, a := range accounts {
		if !a.Expired(now) {
			ids = append(ids, a.ID)
		}
	}
	totals, err := c.reader.Totals(ctx, ids, now)
	if err != nil {
		return Balance{}, fmt.Errorf("balance: account totals: %w", err)
	}
	for _, t := range totals {
		out.Available += t.Settled
		out.Incoming += t.Pending
	}

	lease, err := c.reader.GetLeaseAccount(ctx, sub.OrganizationID)
	if err != nil {
		return Balance{}, fmt.Errorf("balance: lease account: %w", err)
	}
	leaseTotals, err := c.reader.Totals(ctx, []id.AccountID{lease.ID}, now)
	if err != nil {
		return Balance{}, fmt.Errorf("balance: lease totals: %w", err)
	}
	lt := leaseTotals[lease.ID]
	out.Blocked = lt.Settled + lt.Pending

	return out, nil
}

// AccountBalances returns a balance for each credit account of the
// subscription, expired accounts included.
func (c *LedgerCalculator) AccountBalances(ctx context.Context, sub *subscription.Subscription, orgID string) (map[id.AccountID]Balance, error) {
	now := c.now()
	accounts, err := c.creditAccounts(ctx, sub, orgID)
	if err != nil {
		return nil, err
	}

	ids := make([]id.AccountID, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	totals, err := c.reader.Totals(ctx, ids, now)
	if err != nil {
		return nil, fmt.Errorf("balance: account totals: %w", err)
	}

	lease, err := c.reader.GetLeaseAccount(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("balance: lease account: %w", err)
	}
	holds, err := c.reader.OpenLeaseHolds(ctx, lease.ID)
	if err != nil {
		return nil, fmt.Errorf("balance: open lease holds: %w", err)
	}

	out := make(map[id.AccountID]Balance, len(ids))
	for _, accountID := range ids {
		t := totals[accountID]
		out[accountID] = Balance{
			Available: t.Settled,
			Incoming:  t.Pending,
			Blocked:   holds[accountID],
		}
	}
	return out, nil
}

func (c *LedgerCalculator) creditAccounts(ctx context.Context, sub *subscription.Subscription, orgID string) ([]*account.Account, error) {
	if sub == nil {
		return nil, fmt.Errorf("balance: subscription is required")
	}
	if len(sub.CreditAccounts) == 0 {
		accounts, err := c.reader.ListAccounts(ctx, orgID, account.ListOpts{Type: account.TypeAsset})
		if err != nil {
			return nil, fmt.Errorf("balance: list accounts: %w", err)
		}
		return accounts, nil
	}

	accounts := make([]*account.Account, 0, len(sub.CreditAccounts))
	for _, accountID := range sub.CreditAccounts {
		a, err := c.reader.GetAccount(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("balance: credit account %s: %w", accountID, err)
		}
		if a.Type != account.TypeAsset || a.OrganizationID != orgID {
			continue
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}
