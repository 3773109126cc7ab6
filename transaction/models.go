// Package transaction defines ledger rows, the paired transfers that produce
// them, and the query and aggregation types read back from the ledger.
package transaction

import (
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// Operation tags the business meaning of a transfer.
type Operation string

const (
	OpFill        Operation = "fill"        // PLATFORM -> ASSET
	OpWithdrawal  Operation = "withdrawal"  // ASSET -> PLATFORM
	OpReservation Operation = "reservation" // ASSET -> LEASE
	OpConsumption Operation = "consumption" // LEASE -> PLATFORM
	OpRefund      Operation = "refund"      // LEASE -> ASSET
)

// Transaction is one ledger row. Every transfer writes two rows sharing a
// TxID with debit and credit swapped, so the pair always nets to zero.
type Transaction struct {
	TxID        id.TransferID   `json:"tx_id"`
	GroupID     id.LeaseID      `json:"group_id,omitempty"`
	AccountID   id.AccountID    `json:"account_id"`
	Debit       int64           `json:"debit"`
	Credit      int64           `json:"credit"`
	Created     time.Time       `json:"created"`
	ProjectID   string          `json:"project_id,omitempty"`
	ServiceName string          `json:"service_name,omitempty"`
	Requests    types.Resources `json:"requests,omitempty"`
	Operation   Operation       `json:"operation"`
	Line        int             `json:"line"`
}

// Net is the row's contribution to its account's running balance.
func (t *Transaction) Net() int64 {
	return t.Debit - t.Credit
}

// Allocation is a reservation drawn from one source account for a lease.
type Allocation struct {
	AccountID   id.AccountID    `json:"account_id"`
	Amount      int64           `json:"amount"`
	Created     time.Time       `json:"created"`
	ProjectID   string          `json:"project_id,omitempty"`
	ServiceName string          `json:"service_name,omitempty"`
	Requests    types.Resources `json:"requests,omitempty"`
	Line        int             `json:"line"`
}

// Totals is an account's running balance split at an instant.
type Totals struct {
	// Settled sums rows created at or before the instant.
	Settled int64
	// Pending sums rows created after it.
	Pending int64
}
