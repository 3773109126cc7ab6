package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/lock"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/transaction"
)

// Begin opens a database transaction holding the organization's lock: the
// in-process one when the dialect asks for it, then the dialect's own.
func (s *Store) Begin(ctx context.Context, orgID string) (store.Tx, error) {
	var handle lock.Handle
	if s.locks != nil {
		h, err := s.locks.Acquire(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", credits.ErrLockUnavailable, err)
		}
		handle = h
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		releaseHandle(handle)
		return nil, s.errorf("begin", err)
	}

	if s.d.LockOrg != "" {
		if _, err := sqlTx.ExecContext(ctx, s.d.rebind(s.d.LockOrg), orgID); err != nil {
			_ = sqlTx.Rollback() //nolint:errcheck // the lock error is reported
			releaseHandle(handle)
			return nil, fmt.Errorf("%w: %s: %w", credits.ErrLockUnavailable, s.d.Name, err)
		}
	}

	return &tx{conn: conn{q: sqlTx, d: s.d}, tx: sqlTx, handle: handle}, nil
}

func releaseHandle(h lock.Handle) error {
	if h == nil {
		return nil
	}
	return h.Release(context.Background())
}

type tx struct {
	conn
	tx     *sql.Tx
	handle lock.Handle
}

func (t *tx) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return t.getAccount(ctx, accountID)
}

func (t *tx) GetPlatformAccount(ctx context.Context) (*account.Account, error) {
	return t.platformAccount(ctx)
}

func (t *tx) GetLeaseAccount(ctx context.Context, orgID string) (*account.Account, error) {
	return t.leaseAccount(ctx, orgID)
}

func (t *tx) ListAccounts(ctx context.Context, orgID string, opts account.ListOpts) ([]*account.Account, error) {
	return t.listAccounts(ctx, orgID, opts)
}

func (t *tx) InsertTransactions(ctx context.Context, rows ...*transaction.Transaction) error {
	for _, r := range rows {
		var group any
		if !r.GroupID.IsNil() {
			group = r.GroupID.String()
		}
		_, err := t.exec(ctx, `
INSERT INTO credit_transactions
    (tx_id, group_id, account_id, debit, credit, created, project_id, service_name, requests, operation, line)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.TxID.String(), group, r.AccountID.String(), r.Debit, r.Credit, t.d.timeArg(r.Created),
			r.ProjectID, r.ServiceName, r.Requests, string(r.Operation), r.Line,
		)
		if err != nil {
			if t.d.IsUniqueViolation != nil && t.d.IsUniqueViolation(err) {
				return fmt.Errorf("%w: transaction %s on %s", credits.ErrAlreadyExists, r.TxID, r.AccountID)
			}
			return t.errorf("insert transaction", err)
		}
	}
	return nil
}

func (t *tx) GroupBalance(ctx context.Context, groupID id.LeaseID, accountID id.AccountID) (int64, error) {
	var sum int64
	err := t.queryRow(ctx,
		`SELECT COALESCE(SUM(debit - credit), 0) FROM credit_transactions WHERE group_id = ? AND account_id = ?`,
		groupID.String(), accountID.String(),
	).Scan(&sum)
	if err != nil {
		return 0, t.errorf("group balance", err)
	}
	return sum, nil
}

func (t *tx) ListGroup(ctx context.Context, groupID id.LeaseID) ([]*transaction.Transaction, error) {
	return t.listGroup(ctx, groupID)
}

func (t *tx) Commit() error {
	return t.finish(t.tx.Commit())
}

func (t *tx) Rollback() error {
	return t.finish(t.tx.Rollback())
}

// finish drops the in-process lock once the database transaction is over,
// whichever way it ended.
func (t *tx) finish(err error) error {
	h := t.handle
	t.handle = nil
	if errors.Is(err, sql.ErrTxDone) {
		_ = releaseHandle(h) //nolint:errcheck // the transaction error takes precedence
		return store.ErrTxDone
	}
	return errors.Join(err, releaseHandle(h))
}
