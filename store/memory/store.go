// Package memory implements store.Store in process memory. It is intended
// for tests and single-process embedding.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/lock"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
)

type Store struct {
	mu sync.RWMutex

	// Account storage
	accounts   map[string]*account.Account
	platformID string
	leaseByOrg map[string]string

	// Ledger storage, append-only
	rows    []*transaction.Transaction
	groups  map[string][]*transaction.Transaction
	rowKeys map[string]struct{}

	// Subscription storage
	subscriptions map[string]*subscription.Subscription
	subByOrg      map[string]string

	locks  *lock.Local
	closed bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts:      make(map[string]*account.Account),
		leaseByOrg:    make(map[string]string),
		groups:        make(map[string][]*transaction.Transaction),
		rowKeys:       make(map[string]struct{}),
		subscriptions: make(map[string]*subscription.Subscription),
		subByOrg:      make(map[string]string),
		locks:         lock.NewLocal(),
	}
}

// ──────────────────────────────────────────────────
// Account Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := a.ID.String()
	if _, exists := s.accounts[key]; exists {
		return credits.ErrAlreadyExists
	}
	switch a.Type {
	case account.TypePlatform:
		if s.platformID != "" {
			return credits.ErrAlreadyExists
		}
		s.platformID = key
	case account.TypeLease:
		if _, exists := s.leaseByOrg[a.OrganizationID]; exists {
			return credits.ErrAlreadyExists
		}
		s.leaseByOrg[a.OrganizationID] = key
	}
	s.accounts[key] = cloneAccount(a)
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountID id.AccountID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.account(accountID.String(), credits.ErrAccountNotFound)
}

func (s *Store) GetPlatformAccount(_ context.Context) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.account(s.platformID, credits.ErrPlatformAccountNotFound)
}

func (s *Store) GetLeaseAccount(_ context.Context, orgID string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.account(s.leaseByOrg[orgID], credits.ErrLeaseAccountNotFound)
}

func (s *Store) ListAccounts(_ context.Context, orgID string, opts account.ListOpts) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Account, 0)
	for _, a := range s.accounts {
		if a.OrganizationID == orgID && opts.Matches(a) {
			result = append(result, cloneAccount(a))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

func (s *Store) account(key string, notFound error) (*account.Account, error) {
	if a, ok := s.accounts[key]; ok {
		return cloneAccount(a), nil
	}
	return nil, notFound
}

// ──────────────────────────────────────────────────
// Ledger read implementation
// ──────────────────────────────────────────────────

func (s *Store) ListTransactions(_ context.Context, f transaction.Filter) ([]*transaction.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page, total := f.Apply(s.rows)
	return cloneRows(page), total, nil
}

func (s *Store) ListGroup(_ context.Context, groupID id.LeaseID) ([]*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := cloneRows(s.groups[groupID.String()])
	sortGroup(rows)
	return rows, nil
}

func (s *Store) Totals(_ context.Context, accountIDs []id.AccountID, asOf time.Time) (map[id.AccountID]transaction.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[id.AccountID]transaction.Totals, len(accountIDs))
	wanted := make(map[id.AccountID]bool, len(accountIDs))
	for _, a := range accountIDs {
		wanted[a] = true
		out[a] = transaction.Totals{}
	}
	for _, r := range s.rows {
		if !wanted[r.AccountID] {
			continue
		}
		t := out[r.AccountID]
		if r.Created.After(asOf) {
			t.Pending += r.Net()
		} else {
			t.Settled += r.Net()
		}
		out[r.AccountID] = t
	}
	return out, nil
}

func (s *Store) OpenLeaseHolds(_ context.Context, leaseAccountID id.AccountID) (map[id.AccountID]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	holds := make(map[id.AccountID]int64)
	for _, rows := range s.groups {
		if transaction.RunningBalance(rows, leaseAccountID) == 0 {
			continue
		}
		for _, r := range rows {
			if r.AccountID == leaseAccountID {
				continue
			}
			if r.Operation == transaction.OpReservation || r.Operation == transaction.OpRefund {
				holds[r.AccountID] -= r.Net()
			}
		}
	}
	return holds, nil
}

// ──────────────────────────────────────────────────
// Subscription Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return credits.ErrAlreadyExists
	}
	if _, exists := s.subByOrg[sub.OrganizationID]; exists {
		return credits.ErrAlreadyExists
	}
	s.subscriptions[sub.ID.String()] = cloneSubscription(sub)
	s.subByOrg[sub.OrganizationID] = sub.ID.String()
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return cloneSubscription(sub), nil
	}
	return nil, credits.ErrSubscriptionNotFound
}

func (s *Store) GetSubscriptionByOrganization(_ context.Context, orgID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.subscriptionByOrg(orgID)
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.subscriptions[sub.ID.String()]
	if !ok {
		return credits.ErrSubscriptionNotFound
	}
	if existing.OrganizationID != sub.OrganizationID {
		delete(s.subByOrg, existing.OrganizationID)
		s.subByOrg[sub.OrganizationID] = sub.ID.String()
	}
	s.subscriptions[sub.ID.String()] = cloneSubscription(sub)
	return nil
}

func (s *Store) GetSubscriptionByLeaseID(_ context.Context, leaseID id.LeaseID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.groups[leaseID.String()]
	for _, r := range rows {
		a, ok := s.accounts[r.AccountID.String()]
		if ok && a.Type == account.TypeLease {
			return s.subscriptionByOrg(a.OrganizationID)
		}
	}
	return nil, credits.ErrLeaseNotFound
}

func (s *Store) subscriptionByOrg(orgID string) (*subscription.Subscription, error) {
	if key, ok := s.subByOrg[orgID]; ok {
		return cloneSubscription(s.subscriptions[key]), nil
	}
	return nil, credits.ErrSubscriptionNotFound
}

// ──────────────────────────────────────────────────
// Units of work
// ──────────────────────────────────────────────────

// Begin locks the organization in process and buffers writes until Commit.
func (s *Store) Begin(ctx context.Context, orgID string) (store.Tx, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, credits.ErrStoreClosed
	}

	h, err := s.locks.Acquire(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", credits.ErrLockUnavailable, err)
	}
	return &tx{s: s, handle: h}, nil
}

func (s *Store) apply(rows []*transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return credits.ErrStoreClosed
	}
	for _, r := range rows {
		if _, ok := s.accounts[r.AccountID.String()]; !ok {
			return fmt.Errorf("%w: %s", credits.ErrAccountNotFound, r.AccountID)
		}
		if _, dup := s.rowKeys[rowKey(r)]; dup {
			return fmt.Errorf("%w: transaction %s on %s", credits.ErrAlreadyExists, r.TxID, r.AccountID)
		}
	}
	for _, r := range rows {
		s.rowKeys[rowKey(r)] = struct{}{}
		s.rows = append(s.rows, r)
		if !r.GroupID.IsNil() {
			s.groups[r.GroupID.String()] = append(s.groups[r.GroupID.String()], r)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return credits.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func rowKey(r *transaction.Transaction) string {
	return r.TxID.String() + "/" + r.AccountID.String()
}

func sortGroup(rows []*transaction.Transaction) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Line != rows[j].Line {
			return rows[i].Line < rows[j].Line
		}
		return rows[i].AccountID.String() < rows[j].AccountID.String()
	})
}

func cloneAccount(a *account.Account) *account.Account {
	c := *a
	if a.Expires != nil {
		exp := *a.Expires
		c.Expires = &exp
	}
	if a.RenewableAmount != nil {
		amt := *a.RenewableAmount
		c.RenewableAmount = &amt
	}
	return &c
}

func cloneSubscription(sub *subscription.Subscription) *subscription.Subscription {
	c := *sub
	c.CreditAccounts = append([]id.AccountID(nil), sub.CreditAccounts...)
	return &c
}

func cloneRows(rows []*transaction.Transaction) []*transaction.Transaction {
	out := make([]*transaction.Transaction, len(rows))
	for i, r := range rows {
		c := *r
		c.Requests = r.Requests.Clone()
		out[i] = &c
	}
	return out
}
