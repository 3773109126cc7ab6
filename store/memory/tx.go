package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/lock"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/transaction"
)

// tx buffers rows until Commit. Accounts are read straight from the store
// since units of work never create them.
type tx struct {
	s      *Store
	handle lock.Handle

	mu      sync.Mutex
	pending []*transaction.Transaction
	done    bool
}

func (t *tx) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return t.s.GetAccount(ctx, accountID)
}

func (t *tx) GetPlatformAccount(ctx context.Context) (*account.Account, error) {
	return t.s.GetPlatformAccount(ctx)
}

func (t *tx) GetLeaseAccount(ctx context.Context, orgID string) (*account.Account, error) {
	return t.s.GetLeaseAccount(ctx, orgID)
}

func (t *tx) ListAccounts(ctx context.Context, orgID string, opts account.ListOpts) ([]*account.Account, error) {
	return t.s.ListAccounts(ctx, orgID, opts)
}

func (t *tx) InsertTransactions(_ context.Context, rows ...*transaction.Transaction) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return store.ErrTxDone
	}
	t.pending = append(t.pending, cloneRows(rows)...)
	return nil
}

func (t *tx) GroupBalance(ctx context.Context, groupID id.LeaseID, accountID id.AccountID) (int64, error) {
	rows, err := t.ListGroup(ctx, groupID)
	if err != nil {
		return 0, err
	}
	return transaction.RunningBalance(rows, accountID), nil
}

func (t *tx) ListGroup(ctx context.Context, groupID id.LeaseID) ([]*transaction.Transaction, error) {
	rows, err := t.s.ListGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil, store.ErrTxDone
	}
	for _, r := range t.pending {
		if r.GroupID == groupID {
			c := *r
			rows = append(rows, &c)
		}
	}
	sortGroup(rows)
	return rows, nil
}

func (t *tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return store.ErrTxDone
	}
	t.done = true

	err := t.s.apply(t.pending)
	t.pending = nil
	return errors.Join(err, t.handle.Release(context.Background()))
}

func (t *tx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	t.pending = nil
	return t.handle.Release(context.Background())
}
