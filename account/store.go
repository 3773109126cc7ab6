package account

import (
	"context"

	"github.com/xraph/credits/id"
)

type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, accountID id.AccountID) (*Account, error)
	GetPlatformAccount(ctx context.Context) (*Account, error)
	GetLeaseAccount(ctx context.Context, orgID string) (*Account, error)
	ListAccounts(ctx context.Context, orgID string, opts ListOpts) ([]*Account, error)
}
