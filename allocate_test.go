package credits

import (
	"testing"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/balance"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/types"
)

func TestPrioritize(t *testing.T) {
	now := time.Date(2026, 1, 30, 9, 0, 0, 0, time.UTC)
	sub := &subscription.Subscription{OrganizationID: "org", RenewalDay: 31}
	renewal := int64(50)

	at := func(d time.Duration) *time.Time {
		ts := now.Add(d)
		return &ts
	}
	mk := func(expires *time.Time, renew *int64) *account.Account {
		return &account.Account{
			ID:              id.NewAccountID(),
			OrganizationID:  "org",
			Type:            account.TypeAsset,
			Expires:         expires,
			RenewableAmount: renew,
		}
	}

	noKeyA := mk(nil, nil)
	noKeyB := mk(nil, nil)
	expiresLater := mk(at(72*time.Hour), nil)
	// Renews on Jan 31, before its own expiry.
	renewsFirst := mk(at(30*24*time.Hour), &renewal)
	expired := mk(at(-time.Hour), nil)
	lease := &account.Account{ID: id.NewAccountID(), OrganizationID: "org", Type: account.TypeLease}
	unfunded := mk(at(time.Hour), nil)

	accounts := []*account.Account{noKeyB, expiresLater, expired, noKeyA, lease, renewsFirst, unfunded}
	balances := map[id.AccountID]balance.Balance{
		noKeyA.ID:       {Available: 1},
		noKeyB.ID:       {Available: 1},
		expiresLater.ID: {Available: 1},
		renewsFirst.ID:  {Available: 1},
		expired.ID:      {Available: 1},
		lease.ID:        {Available: 1},
	}

	got := prioritize(accounts, balances, sub, now)

	first, second := noKeyA, noKeyB
	if second.ID.String() < first.ID.String() {
		first, second = second, first
	}
	want := []*account.Account{renewsFirst, expiresLater, first, second}
	if len(got) != len(want) {
		t.Fatalf("candidates = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].account.ID != w.ID {
			t.Errorf("candidate %d = %s, want %s", i, got[i].account.ID, w.ID)
		}
	}
	if got[2].keyed || got[3].keyed {
		t.Error("accounts without expiry or renewal should be unkeyed")
	}
}

func TestSoonestActionable(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	renewal := int64(10)
	expiry := time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		acct  *account.Account
		sub   *subscription.Subscription
		want  time.Time
		keyed bool
	}{
		{"Plain", &account.Account{}, &subscription.Subscription{RenewalDay: 1}, time.Time{}, false},
		{"Expiry", &account.Account{Expires: &expiry}, &subscription.Subscription{}, expiry, true},
		{"RenewalFirst", &account.Account{Expires: &expiry, RenewableAmount: &renewal}, &subscription.Subscription{RenewalDay: 11}, time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC), true},
		{"ExpiryFirst", &account.Account{Expires: &expiry, RenewableAmount: &renewal}, &subscription.Subscription{RenewalDay: 20}, expiry, true},
		{"RenewalOnly", &account.Account{RenewableAmount: &renewal}, &subscription.Subscription{RenewalDay: 5}, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"RenewalWithoutDay", &account.Account{RenewableAmount: &renewal}, &subscription.Subscription{}, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, keyed := soonestActionable(tt.acct, tt.sub, now)
			if keyed != tt.keyed || !got.Equal(tt.want) {
				t.Errorf("got %v/%v, want %v/%v", got, keyed, tt.want, tt.keyed)
			}
		})
	}
}

func TestAllocate(t *testing.T) {
	a := candidate{account: &account.Account{ID: id.NewAccountID()}, available: 7}
	empty := candidate{account: &account.Account{ID: id.NewAccountID()}, available: 0}
	b := candidate{account: &account.Account{ID: id.NewAccountID()}, available: 100}

	draws, left := allocate([]candidate{a, empty, b}, types.Resources{"b": 5, "a": 4})
	if left != 0 {
		t.Fatalf("left = %d, want 0", left)
	}
	if len(draws) != 2 {
		t.Fatalf("draws = %d, want 2", len(draws))
	}
	if draws[0].accountID != a.account.ID || draws[0].amount != 7 ||
		draws[0].requests["a"] != 4 || draws[0].requests["b"] != 3 {
		t.Errorf("first draw = %+v", draws[0])
	}
	if draws[1].accountID != b.account.ID || draws[1].amount != 2 || draws[1].requests["b"] != 2 {
		t.Errorf("second draw = %+v", draws[1])
	}

	_, left = allocate([]candidate{a}, types.Resources{"a": 10})
	if left != 3 {
		t.Errorf("left = %d, want 3", left)
	}
}
