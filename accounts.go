package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/balance"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/types"
)

// AssetAccountRequest opens a new asset account for an organization.
type AssetAccountRequest struct {
	OrganizationID string `json:"organization_id" validate:"required,max=128"`
	// Expires, when set, excludes the account from allocation afterwards.
	Expires *time.Time `json:"expires,omitempty"`
	// RenewableAmount marks the account as topped up on the subscription's
	// renewal day, which moves it ahead in allocation priority.
	RenewableAmount *int64 `json:"renewable_amount,omitempty" validate:"omitempty,gt=0"`
}

// EnsurePlatformAccount returns the platform account, creating it once.
func (l *Ledger) EnsurePlatformAccount(ctx context.Context) (*account.Account, error) {
	a, err := l.store.GetPlatformAccount(ctx)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrPlatformAccountNotFound) {
		return nil, err
	}

	a = &account.Account{
		Entity: types.NewEntity(l.now()),
		ID:     id.NewAccountID(),
		Type:   account.TypePlatform,
	}
	if err := l.store.CreateAccount(ctx, a); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return l.store.GetPlatformAccount(ctx)
		}
		return nil, fmt.Errorf("credits: create platform account: %w", err)
	}

	l.logger.Info("platform account created", "account_id", a.ID)
	return a, nil
}

// OpenOrganization returns the organization's lease account, creating it once.
func (l *Ledger) OpenOrganization(ctx context.Context, orgID string) (*account.Account, error) {
	if orgID == "" {
		return nil, invalid("organization_id", "is required")
	}

	a, err := l.store.GetLeaseAccount(ctx, orgID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrLeaseAccountNotFound) {
		return nil, err
	}

	a = &account.Account{
		Entity:         types.NewEntity(l.now()),
		ID:             id.NewAccountID(),
		OrganizationID: orgID,
		Type:           account.TypeLease,
	}
	if err := l.store.CreateAccount(ctx, a); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return l.store.GetLeaseAccount(ctx, orgID)
		}
		return nil, fmt.Errorf("credits: create lease account: %w", err)
	}

	l.logger.Info("organization opened", "org_id", orgID, "lease_account_id", a.ID)
	return a, nil
}

// OpenAssetAccount creates an asset account, opening the organization first
// if needed.
func (l *Ledger) OpenAssetAccount(ctx context.Context, req AssetAccountRequest) (*account.Account, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if _, err := l.OpenOrganization(ctx, req.OrganizationID); err != nil {
		return nil, err
	}

	a := &account.Account{
		Entity:          types.NewEntity(l.now()),
		ID:              id.NewAccountID(),
		OrganizationID:  req.OrganizationID,
		Type:            account.TypeAsset,
		Expires:         req.Expires,
		RenewableAmount: req.RenewableAmount,
	}
	if err := l.store.CreateAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("credits: create asset account: %w", err)
	}

	l.logger.Info("asset account opened", "org_id", req.OrganizationID, "account_id", a.ID)
	return a, nil
}

// Balance returns the organization-wide balance for a subscription.
func (l *Ledger) Balance(ctx context.Context, sub *subscription.Subscription) (balance.Balance, error) {
	if sub == nil {
		return balance.Balance{}, invalid("subscription", "is required")
	}
	return l.calculator.OrganizationBalance(ctx, sub)
}

// AccountBalances returns the balance of every credit account of a subscription.
func (l *Ledger) AccountBalances(ctx context.Context, sub *subscription.Subscription) (map[id.AccountID]balance.Balance, error) {
	if sub == nil {
		return nil, invalid("subscription", "is required")
	}
	return l.calculator.AccountBalances(ctx, sub, sub.OrganizationID)
}

func checkSubscription(sub *subscription.Subscription, orgID string) error {
	if sub == nil {
		return invalid("subscription", "is required")
	}
	if sub.OrganizationID != orgID {
		return invalid("subscription", "belongs to organization %q, not %q", sub.OrganizationID, orgID)
	}
	return nil
}

// assetAccount loads an account and checks it is an asset of orgID.
func (u *unit) assetAccount(ctx context.Context, accountID id.AccountID, orgID string) (*account.Account, error) {
	a, err := u.tx.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("credits: load account %s: %w", accountID, err)
	}
	if a.Type != account.TypeAsset {
		return nil, invalid("account_id", "account %s is %s, not %s", accountID, a.Type, account.TypeAsset)
	}
	if a.OrganizationID != orgID {
		return nil, invalid("account_id", "account %s does not belong to organization %q", accountID, orgID)
	}
	return a, nil
}
