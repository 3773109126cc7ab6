package credits

import (
	"context"
	"fmt"

	"github.com/xraph/credits/transaction"
)

// GetTransactions lists an organization's completed transactions, that is
// the lease-side rows of finalized consumption.
func (l *Ledger) GetTransactions(ctx context.Context, orgID string, q transaction.Query) (*transaction.Page, error) {
	if orgID == "" {
		return nil, invalid("organization_id", "is required")
	}
	q, err := q.Normalize()
	if err != nil {
		return nil, &ValidationError{Field: "query", Message: err.Error(), Err: err}
	}

	leaseAcct, err := l.store.GetLeaseAccount(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("credits: load lease account: %w", err)
	}

	f := transaction.Filter{
		AccountID: leaseAcct.ID,
		Operation: transaction.OpConsumption,
		From:      q.From,
		To:        q.To,
		Unit:      q.Unit,
		Sort:      q.Sort,
		Skip:      q.Skip,
		Limit:     q.Limit,
	}
	if q.ProjectID != "" {
		f.ProjectIDs = []string{q.ProjectID}
	}

	rows, total, err := l.store.ListTransactions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("credits: list transactions: %w", err)
	}

	page := &transaction.Page{Total: total, Records: make([]transaction.Record, 0, len(rows))}
	for _, r := range rows {
		rec := transaction.NewRecord(r)
		rec.Resources = rec.Resources.Normalize(l.units)
		page.Records = append(page.Records, rec)
	}
	return page, nil
}

// AggregateTransactions sums an organization's completed transactions by
// project, service or day.
func (l *Ledger) AggregateTransactions(ctx context.Context, orgID string, q transaction.AggregateQuery) ([]transaction.AggregateRow, error) {
	if orgID == "" {
		return nil, invalid("organization_id", "is required")
	}
	if err := q.Validate(); err != nil {
		return nil, &ValidationError{Field: "keys", Message: err.Error(), Err: err}
	}

	leaseAcct, err := l.store.GetLeaseAccount(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("credits: load lease account: %w", err)
	}

	rows, _, err := l.store.ListTransactions(ctx, transaction.Filter{
		AccountID:  leaseAcct.ID,
		Operation:  transaction.OpConsumption,
		From:       q.From,
		To:         q.To,
		ProjectIDs: q.Projects,
		Sort:       transaction.SortCreated,
	})
	if err != nil {
		return nil, fmt.Errorf("credits: list transactions: %w", err)
	}

	records := make([]transaction.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, transaction.NewRecord(r))
	}
	return transaction.Aggregate(records, q.Keys, l.units), nil
}
