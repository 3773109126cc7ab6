// Package balance derives available, incoming and blocked credit balances
// from ledger history and subscription data.
package balance

import (
	"context"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
)

// Balance is a point-in-time view of credits.
type Balance struct {
	// Available credits can be leased or withdrawn now.
	Available int64 `json:"available"`
	// Incoming credits are dated in the future.
	Incoming int64 `json:"incoming"`
	// Blocked credits are held by open leases.
	Blocked int64 `json:"blocked"`
}

// Calculator computes balances for an organization and its credit accounts.
type Calculator interface {
	OrganizationBalance(ctx context.Context, sub *subscription.Subscription) (Balance, error)
	AccountBalances(ctx context.Context, sub *subscription.Subscription, orgID string) (map[id.AccountID]Balance, error)
}
