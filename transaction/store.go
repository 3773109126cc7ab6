package transaction

import (
	"context"
	"time"

	"github.com/xraph/credits/id"
)

// Store reads committed ledger rows. Writes only happen inside a unit of
// work, see store.Tx.
type Store interface {
	ListTransactions(ctx context.Context, f Filter) ([]*Transaction, int, error)
	ListGroup(ctx context.Context, groupID id.LeaseID) ([]*Transaction, error)
	Totals(ctx context.Context, accountIDs []id.AccountID, asOf time.Time) (map[id.AccountID]Totals, error)
	OpenLeaseHolds(ctx context.Context, leaseAccountID id.AccountID) (map[id.AccountID]int64, error)
}
