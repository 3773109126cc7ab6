package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/credits/lock"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/transaction"
)

const lockKeyPrefix = "credits:org:"

// unit is one atomic unit of work holding an organization's lock. Open it
// with openUnit and always defer release with the operation's named error.
type unit struct {
	l      *Ledger
	orgID  string
	tx     store.Tx
	handle lock.Handle
}

func (l *Ledger) openUnit(ctx context.Context, orgID string) (*unit, error) {
	u := &unit{l: l, orgID: orgID}

	if l.locker != nil {
		h, err := l.locker.Acquire(ctx, lockKeyPrefix+orgID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLockUnavailable, orgID, err)
		}
		u.handle = h
	}

	tx, err := l.store.Begin(ctx, orgID)
	if err != nil {
		u.unlock(ctx)
		return nil, fmt.Errorf("credits: begin unit for %s: %w", orgID, err)
	}
	u.tx = tx

	return u, nil
}

// release commits when *errp is nil and rolls back otherwise, then drops
// the organization lock. A panic rolls back and is re-raised.
func (u *unit) release(ctx context.Context, errp *error) {
	if r := recover(); r != nil {
		u.rollback()
		u.unlock(ctx)
		panic(r)
	}

	if *errp == nil {
		if err := u.tx.Commit(); err != nil {
			*errp = fmt.Errorf("%w: %w", ErrTransactionFailed, err)
		}
	} else {
		u.rollback()
	}
	u.unlock(ctx)
}

func (u *unit) rollback() {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, store.ErrTxDone) {
		u.l.logger.Error("rollback failed", "org_id", u.orgID, "error", err)
	}
}

func (u *unit) unlock(ctx context.Context) {
	if u.handle == nil {
		return
	}
	if err := u.handle.Release(context.WithoutCancel(ctx)); err != nil {
		u.l.logger.Warn("organization lock release failed", "org_id", u.orgID, "error", err)
	}
	u.handle = nil
}

// transfer writes both rows of t.
func (u *unit) transfer(ctx context.Context, t transaction.Transfer) error {
	rows, err := t.Rows()
	if err != nil {
		return err
	}
	if err := u.tx.InsertTransactions(ctx, rows...); err != nil {
		return fmt.Errorf("credits: write %s transfer: %w", t.Operation, err)
	}
	return nil
}
