package transaction

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// ErrInvalidTransfer is returned when a transfer cannot produce a balanced pair.
var ErrInvalidTransfer = errors.New("transaction: invalid transfer")

// Transfer describes one movement of credits between two accounts.
type Transfer struct {
	From        id.AccountID
	To          id.AccountID
	Amount      int64
	Created     time.Time
	GroupID     id.LeaseID
	Operation   Operation
	Line        int
	ProjectID   string
	ServiceName string
	Requests    types.Resources
}

// Rows builds the two ledger rows of the transfer: the source row carries
// the credit and the destination row the debit.
func (t Transfer) Rows() ([]*Transaction, error) {
	switch {
	case t.Amount <= 0:
		return nil, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidTransfer, t.Amount)
	case t.From.IsNil() || t.To.IsNil():
		return nil, fmt.Errorf("%w: both accounts are required", ErrInvalidTransfer)
	case t.From == t.To:
		return nil, fmt.Errorf("%w: source and destination are the same account", ErrInvalidTransfer)
	}

	txID := id.NewTransferID()
	created := t.Created.UTC()
	row := func(account id.AccountID, debit, credit int64) *Transaction {
		return &Transaction{
			TxID:        txID,
			GroupID:     t.GroupID,
			AccountID:   account,
			Debit:       debit,
			Credit:      credit,
			Created:     created,
			ProjectID:   t.ProjectID,
			ServiceName: t.ServiceName,
			Requests:    t.Requests.Clone(),
			Operation:   t.Operation,
			Line:        t.Line,
		}
	}

	return []*Transaction{
		row(t.From, 0, t.Amount),
		row(t.To, t.Amount, 0),
	}, nil
}

// RunningBalance sums debit minus credit over the rows of one account.
func RunningBalance(rows []*Transaction, accountID id.AccountID) int64 {
	var sum int64
	for _, r := range rows {
		if r.AccountID == accountID {
			sum += r.Net()
		}
	}
	return sum
}

// Allocations extracts the reservation source rows of a lease group in
// allocation order.
func Allocations(rows []*Transaction) []Allocation {
	var out []Allocation
	for _, r := range rows {
		if r.Operation != OpReservation || r.Credit <= 0 {
			continue
		}
		out = append(out, Allocation{
			AccountID:   r.AccountID,
			Amount:      r.Credit,
			Created:     r.Created,
			ProjectID:   r.ProjectID,
			ServiceName: r.ServiceName,
			Requests:    r.Requests,
			Line:        r.Line,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

// SumAllocations returns the total reserved by the given allocations.
func SumAllocations(allocs []Allocation) int64 {
	var total int64
	for _, a := range allocs {
		total += a.Amount
	}
	return total
}

// NextLine returns the line number following the highest one in rows.
func NextLine(rows []*Transaction) int {
	next := 0
	for _, r := range rows {
		if r.Line >= next {
			next = r.Line + 1
		}
	}
	return next
}

// LeaseSummary tallies the lease-side rows of a group.
type LeaseSummary struct {
	Leased   int64 `json:"leased"`
	Consumed int64 `json:"consumed"`
	Refunded int64 `json:"refunded"`
}

// Outstanding is the amount still held by the lease.
func (s LeaseSummary) Outstanding() int64 {
	return s.Leased - s.Consumed - s.Refunded
}

// Summarize tallies a lease group's rows.
func Summarize(rows []*Transaction) LeaseSummary {
	var s LeaseSummary
	for _, r := range rows {
		switch {
		case r.Operation == OpReservation && r.Debit > 0:
			s.Leased += r.Debit
		case r.Operation == OpConsumption && r.Credit > 0:
			s.Consumed += r.Credit
		case r.Operation == OpRefund && r.Credit > 0:
			s.Refunded += r.Credit
		}
	}
	return s
}
