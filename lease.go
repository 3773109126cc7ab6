package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/meter"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/types"
)

// LeaseRequest reserves credits for an operation before it runs.
type LeaseRequest struct {
	Requests       types.Resources            `json:"requests" validate:"required,min=1,dive,keys,required,endkeys,gte=0"`
	ProjectID      string                     `json:"project_id,omitempty" validate:"omitempty,max=128"`
	ServiceName    string                     `json:"service_name,omitempty" validate:"omitempty,max=128"`
	Subscription   *subscription.Subscription `json:"subscription" validate:"required"`
	OrganizationID string                     `json:"organization_id" validate:"required,max=128"`
}

// LeaseStatus describes a lease as recorded in the ledger.
type LeaseStatus struct {
	LeaseID id.LeaseID `json:"lease_id"`
	Open    bool       `json:"open"`
	transaction.LeaseSummary
	Allocations []transaction.Allocation `json:"allocations"`
}

// AcquireLease reserves the sum of the requested amounts across the
// organization's asset accounts, soonest-expiring first. The lease is all
// or nothing: on InsufficientBalanceError no row is written.
func (l *Ledger) AcquireLease(ctx context.Context, req LeaseRequest) (id.LeaseID, error) {
	leaseID, allocs, err := l.acquire(ctx, req)
	if err != nil {
		var short *InsufficientBalanceError
		if errors.As(err, &short) {
			l.logger.Info("lease rejected",
				"org_id", req.OrganizationID,
				"available", short.Available,
				"required", short.Required,
			)
			l.plugins.EmitInsufficientBalance(ctx, req.OrganizationID, short.Available, short.Required)
		}
		return id.Nil, err
	}

	l.logger.Info("lease acquired",
		"org_id", req.OrganizationID,
		"lease_id", leaseID,
		"amount", transaction.SumAllocations(allocs),
		"accounts", len(allocs),
	)
	l.plugins.EmitLeaseAcquired(ctx, req.OrganizationID, leaseID, allocs)

	return leaseID, nil
}

func (l *Ledger) acquire(ctx context.Context, req LeaseRequest) (leaseID id.LeaseID, allocs []transaction.Allocation, err error) {
	if err := validateStruct(req); err != nil {
		return id.Nil, nil, err
	}
	if err := checkSubscription(req.Subscription, req.OrganizationID); err != nil {
		return id.Nil, nil, err
	}
	if err := req.Requests.Validate(l.units); err != nil {
		return id.Nil, nil, invalid("requests", "%v", err)
	}
	requests := req.Requests.Normalize(l.units)
	required := requests.Total()
	if required == 0 {
		return id.Nil, nil, invalid("requests", "at least one positive amount is required")
	}

	u, err := l.openUnit(ctx, req.OrganizationID)
	if err != nil {
		return id.Nil, nil, err
	}
	defer u.release(ctx, &err)

	org, err := l.calculator.OrganizationBalance(ctx, req.Subscription)
	if err != nil {
		return id.Nil, nil, fmt.Errorf("credits: organization balance: %w", err)
	}
	if org.Available < required {
		return id.Nil, nil, &InsufficientBalanceError{Available: org.Available, Required: required}
	}

	now := l.now()
	accounts, err := u.tx.ListAccounts(ctx, req.OrganizationID, account.ListOpts{Type: account.TypeAsset, ActiveAt: now})
	if err != nil {
		return id.Nil, nil, fmt.Errorf("credits: list asset accounts: %w", err)
	}
	balances, err := l.calculator.AccountBalances(ctx, req.Subscription, req.OrganizationID)
	if err != nil {
		return id.Nil, nil, fmt.Errorf("credits: account balances: %w", err)
	}
	leaseAcct, err := u.tx.GetLeaseAccount(ctx, req.OrganizationID)
	if err != nil {
		return id.Nil, nil, fmt.Errorf("credits: load lease account: %w", err)
	}

	draws, short := allocate(prioritize(accounts, balances, req.Subscription, now), requests)
	if short > 0 {
		return id.Nil, nil, fmt.Errorf("%w: %d of %d credits unallocated", ErrAllocationIncomplete, short, required)
	}

	leaseID = id.NewLeaseID()
	allocs = make([]transaction.Allocation, 0, len(draws))
	for i, d := range draws {
		t := transaction.Transfer{
			From:        d.accountID,
			To:          leaseAcct.ID,
			Amount:      d.amount,
			Created:     now,
			GroupID:     leaseID,
			Operation:   transaction.OpReservation,
			Line:        i,
			ProjectID:   req.ProjectID,
			ServiceName: req.ServiceName,
			Requests:    d.requests,
		}
		if err := u.transfer(ctx, t); err != nil {
			return id.Nil, nil, err
		}
		allocs = append(allocs, transaction.Allocation{
			AccountID:   d.accountID,
			Amount:      d.amount,
			Created:     now.UTC(),
			ProjectID:   req.ProjectID,
			ServiceName: req.ServiceName,
			Requests:    d.requests,
			Line:        i,
		})
	}

	return leaseID, allocs, nil
}

// CancelLease returns every reserved credit to the accounts it came from.
// Canceling a closed lease is a no-op.
func (l *Ledger) CancelLease(ctx context.Context, leaseID id.LeaseID) error {
	out, err := l.closeLease(ctx, leaseID, nil)
	if err != nil {
		return err
	}

	if out.alreadyClosed {
		l.logger.Debug("lease already closed", "org_id", out.orgID, "lease_id", leaseID)
		l.plugins.EmitLeaseAlreadyClosed(ctx, out.orgID, leaseID)
		return nil
	}

	l.logger.Info("lease canceled",
		"org_id", out.orgID,
		"lease_id", leaseID,
		"refunded", out.refunded,
	)
	l.plugins.EmitLeaseCanceled(ctx, out.orgID, leaseID, out.refunded)

	return nil
}

// FinalizeLease charges the metered consumption of a lease to the platform
// and refunds whatever was reserved but not consumed. Finalizing a closed
// lease is a no-op.
func (l *Ledger) FinalizeLease(ctx context.Context, report *meter.Report) error {
	if report == nil {
		return invalid("report", "is required")
	}
	// Only shape is checked here. Units the ledger does not know are still
	// charged and are left out of the stored breakdown.
	if err := validateStruct(report); err != nil {
		return err
	}

	out, err := l.closeLease(ctx, report.LeaseID, report)
	if err != nil {
		return err
	}

	if out.alreadyClosed {
		l.logger.Debug("lease already closed", "org_id", out.orgID, "lease_id", report.LeaseID)
		l.plugins.EmitLeaseAlreadyClosed(ctx, out.orgID, report.LeaseID)
		return nil
	}

	l.logger.Info("lease finalized",
		"org_id", out.orgID,
		"lease_id", report.LeaseID,
		"consumed", out.consumed,
		"refunded", out.refunded,
	)
	l.plugins.EmitLeaseFinalized(ctx, out.orgID, report.LeaseID, out.consumed, out.refunded)

	return nil
}

// LeaseStatus reports how much of a lease was reserved, consumed and refunded.
func (l *Ledger) LeaseStatus(ctx context.Context, leaseID id.LeaseID) (*LeaseStatus, error) {
	rows, err := l.store.ListGroup(ctx, leaseID)
	if err != nil {
		return nil, fmt.Errorf("credits: load lease %s: %w", leaseID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrLeaseNotFound, leaseID)
	}

	summary := transaction.Summarize(rows)
	return &LeaseStatus{
		LeaseID:      leaseID,
		Open:         summary.Outstanding() != 0,
		LeaseSummary: summary,
		Allocations:  transaction.Allocations(rows),
	}, nil
}

type leaseOutcome struct {
	orgID         string
	alreadyClosed bool
	consumed      int64
	refunded      int64
}

// closeLease settles an open lease. With a nil report every reserved credit
// is refunded; otherwise the reported consumption is charged first.
func (l *Ledger) closeLease(ctx context.Context, leaseID id.LeaseID, report *meter.Report) (out leaseOutcome, err error) {
	if leaseID.IsNil() {
		return out, invalid("lease_id", "is required")
	}

	sub, err := l.subs.GetByLeaseID(ctx, leaseID)
	if err != nil {
		return out, fmt.Errorf("credits: resolve lease %s: %w", leaseID, err)
	}
	out.orgID = sub.OrganizationID

	u, err := l.openUnit(ctx, sub.OrganizationID)
	if err != nil {
		return out, err
	}
	defer u.release(ctx, &err)

	leaseAcct, err := u.tx.GetLeaseAccount(ctx, sub.OrganizationID)
	if err != nil {
		return out, fmt.Errorf("credits: load lease account: %w", err)
	}
	held, err := u.tx.GroupBalance(ctx, leaseID, leaseAcct.ID)
	if err != nil {
		return out, fmt.Errorf("credits: lease balance: %w", err)
	}
	if held == 0 {
		out.alreadyClosed = true
		return out, nil
	}

	rows, err := u.tx.ListGroup(ctx, leaseID)
	if err != nil {
		return out, fmt.Errorf("credits: load lease rows: %w", err)
	}
	line := transaction.NextLine(rows)

	if report != nil {
		consumed := report.Consumed()
		if consumed > held {
			return out, &ValidationError{
				Field:   "consumption",
				Message: fmt.Sprintf("consumed %d exceeds leased %d", consumed, held),
				Err:     ErrOverConsumption,
			}
		}
		if consumed > 0 {
			platform, err := u.tx.GetPlatformAccount(ctx)
			if err != nil {
				return out, fmt.Errorf("credits: load platform account: %w", err)
			}
			err = u.transfer(ctx, transaction.Transfer{
				From:        leaseAcct.ID,
				To:          platform.ID,
				Amount:      consumed,
				Created:     l.now(),
				GroupID:     leaseID,
				Operation:   transaction.OpConsumption,
				Line:        line,
				ProjectID:   report.ProjectID,
				ServiceName: report.ServiceName,
				Requests:    report.Resources().Normalize(l.units),
			})
			if err != nil {
				return out, err
			}
			line++
		}
		out.consumed = consumed

		if rows, err = u.tx.ListGroup(ctx, leaseID); err != nil {
			return out, fmt.Errorf("credits: reload lease rows: %w", err)
		}
	}

	allocs := transaction.Allocations(rows)
	if refund := transaction.SumAllocations(allocs) - out.consumed; refund > 0 {
		if out.refunded, err = u.returnUnused(ctx, leaseID, leaseAcct.ID, refund, allocs, line); err != nil {
			return out, err
		}
	}

	left, err := u.tx.GroupBalance(ctx, leaseID, leaseAcct.ID)
	if err != nil {
		return out, fmt.Errorf("credits: lease balance: %w", err)
	}
	if left != 0 {
		return out, fmt.Errorf("%w: lease %s holds %d", ErrConservationViolated, leaseID, left)
	}

	return out, nil
}

// returnUnused refunds amount from the lease account to the allocation
// sources in allocation order. Each refund keeps the original allocation's
// timestamp so point-in-time balances see the credits as never having left.
func (u *unit) returnUnused(ctx context.Context, leaseID id.LeaseID, leaseAcct id.AccountID, amount int64, allocs []transaction.Allocation, line int) (int64, error) {
	remaining := amount
	for _, a := range allocs {
		if remaining == 0 {
			break
		}
		part := min(remaining, a.Amount)
		if part <= 0 {
			continue
		}
		err := u.transfer(ctx, transaction.Transfer{
			From:        leaseAcct,
			To:          a.AccountID,
			Amount:      part,
			Created:     a.Created,
			GroupID:     leaseID,
			Operation:   transaction.OpRefund,
			Line:        line,
			ProjectID:   a.ProjectID,
			ServiceName: a.ServiceName,
		})
		if err != nil {
			return amount - remaining, err
		}
		line++
		remaining -= part
	}

	if remaining > 0 {
		return amount - remaining, fmt.Errorf("%w: %d credits of lease %s have no source", ErrRefundExceedsLease, remaining, leaseID)
	}
	return amount, nil
}
