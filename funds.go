package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
)

// FillRequest mints credits into an asset account.
type FillRequest struct {
	AccountID      id.AccountID `json:"account_id" validate:"required"`
	Amount         int64        `json:"amount" validate:"gt=0"`
	OrganizationID string       `json:"organization_id" validate:"required,max=128"`
	// Created dates the fill. Zero means now; a future date makes the
	// credits incoming until then.
	Created time.Time `json:"created,omitempty"`
}

// WithdrawRequest returns available credits from an asset account.
type WithdrawRequest struct {
	AccountID      id.AccountID               `json:"account_id" validate:"required"`
	Amount         int64                      `json:"amount" validate:"gt=0"`
	Subscription   *subscription.Subscription `json:"subscription" validate:"required"`
	OrganizationID string                     `json:"organization_id" validate:"required,max=128"`
}

// FillAccount writes one PLATFORM to ASSET transfer. Filling needs no
// balance check.
func (l *Ledger) FillAccount(ctx context.Context, req FillRequest) error {
	if err := l.fill(ctx, req); err != nil {
		return err
	}

	l.logger.Info("account filled",
		"org_id", req.OrganizationID,
		"account_id", req.AccountID,
		"amount", req.Amount,
	)
	l.plugins.EmitAccountFilled(ctx, req.OrganizationID, req.AccountID, req.Amount)

	return nil
}

func (l *Ledger) fill(ctx context.Context, req FillRequest) (err error) {
	if err := validateStruct(req); err != nil {
		return err
	}
	created := req.Created
	if created.IsZero() {
		created = l.now()
	}

	u, err := l.openUnit(ctx, req.OrganizationID)
	if err != nil {
		return err
	}
	defer u.release(ctx, &err)

	asset, err := u.assetAccount(ctx, req.AccountID, req.OrganizationID)
	if err != nil {
		return err
	}
	platform, err := u.tx.GetPlatformAccount(ctx)
	if err != nil {
		return fmt.Errorf("credits: load platform account: %w", err)
	}

	return u.transfer(ctx, transaction.Transfer{
		From:      platform.ID,
		To:        asset.ID,
		Amount:    req.Amount,
		Created:   created,
		Operation: transaction.OpFill,
	})
}

// WithdrawCredits writes one ASSET to PLATFORM transfer. Only the account's
// available balance can be withdrawn; credits held by leases cannot.
func (l *Ledger) WithdrawCredits(ctx context.Context, req WithdrawRequest) error {
	if err := l.withdraw(ctx, req); err != nil {
		var short *InsufficientBalanceError
		if errors.As(err, &short) {
			l.plugins.EmitInsufficientBalance(ctx, req.OrganizationID, short.Available, short.Required)
		}
		return err
	}

	l.logger.Info("credits withdrawn",
		"org_id", req.OrganizationID,
		"account_id", req.AccountID,
		"amount", req.Amount,
	)
	l.plugins.EmitCreditsWithdrawn(ctx, req.OrganizationID, req.AccountID, req.Amount)

	return nil
}

func (l *Ledger) withdraw(ctx context.Context, req WithdrawRequest) (err error) {
	if err := validateStruct(req); err != nil {
		return err
	}
	if err := checkSubscription(req.Subscription, req.OrganizationID); err != nil {
		return err
	}

	u, err := l.openUnit(ctx, req.OrganizationID)
	if err != nil {
		return err
	}
	defer u.release(ctx, &err)

	asset, err := u.assetAccount(ctx, req.AccountID, req.OrganizationID)
	if err != nil {
		return err
	}

	balances, err := l.calculator.AccountBalances(ctx, req.Subscription, req.OrganizationID)
	if err != nil {
		return fmt.Errorf("credits: account balances: %w", err)
	}
	available := balances[asset.ID].Available
	if available < req.Amount {
		return &InsufficientBalanceError{Available: available, Required: req.Amount}
	}

	platform, err := u.tx.GetPlatformAccount(ctx)
	if err != nil {
		return fmt.Errorf("credits: load platform account: %w", err)
	}

	return u.transfer(ctx, transaction.Transfer{
		From:      asset.ID,
		To:        platform.ID,
		Amount:    req.Amount,
		Created:   l.now(),
		Operation: transaction.OpWithdrawal,
	})
}
