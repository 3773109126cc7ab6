package credits

import (
	"sort"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/balance"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/types"
)

// candidate is an asset account eligible to fund a lease.
type candidate struct {
	account   *account.Account
	available int64
	// key is the soonest instant the account's credits stop being usable
	// as they are; accounts without one sort last.
	key   time.Time
	keyed bool
}

// draw is the part of a lease funded by one account.
type draw struct {
	accountID id.AccountID
	amount    int64
	requests  types.Resources
}

// prioritize orders the non-expired asset accounts that have a balance
// entry so that credits about to expire or reset are spent first.
func prioritize(accounts []*account.Account, balances map[id.AccountID]balance.Balance, sub *subscription.Subscription, now time.Time) []candidate {
	cands := make([]candidate, 0, len(accounts))
	for _, a := range accounts {
		if a.Type != account.TypeAsset || a.Expired(now) {
			continue
		}
		b, ok := balances[a.ID]
		if !ok {
			continue
		}
		c := candidate{account: a, available: b.Available}
		c.key, c.keyed = soonestActionable(a, sub, now)
		cands = append(cands, c)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.keyed != b.keyed {
			return a.keyed
		}
		if a.keyed && !a.key.Equal(b.key) {
			return a.key.Before(b.key)
		}
		return a.account.ID.String() < b.account.ID.String()
	})
	return cands
}

// soonestActionable is the account's expiry, or its next renewal when that
// comes first.
func soonestActionable(a *account.Account, sub *subscription.Subscription, now time.Time) (time.Time, bool) {
	var (
		key   time.Time
		keyed bool
	)
	if a.Expires != nil {
		key, keyed = *a.Expires, true
	}
	if a.Renews() {
		if next, ok := sub.NextRenewal(now); ok && (!keyed || next.Before(key)) {
			key, keyed = next, true
		}
	}
	return key, keyed
}

// allocate walks candidates in order and draws from each until it is
// exhausted or every unit is satisfied. Units are served in name order.
// It returns the draws and the amount left unsatisfied.
func allocate(cands []candidate, requests types.Resources) ([]draw, int64) {
	remaining := requests.Clone()
	units := requests.Units()
	left := requests.Total()

	var draws []draw
	for _, c := range cands {
		if left == 0 {
			break
		}
		if c.available <= 0 {
			continue
		}

		bal := c.available
		d := draw{accountID: c.account.ID, requests: types.Resources{}}
		for _, u := range units {
			if bal == 0 {
				break
			}
			need := remaining[u]
			if need == 0 {
				continue
			}
			take := min(need, bal)
			remaining[u] -= take
			bal -= take
			left -= take
			d.amount += take
			d.requests[u] += take
		}
		if d.amount > 0 {
			draws = append(draws, d)
		}
	}
	return draws, left
}
