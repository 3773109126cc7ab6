package subscription_test

import (
	"testing"
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
)

func TestNextRenewal(t *testing.T) {
	utc := func(y int, m time.Month, d, h int) time.Time {
		return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name string
		day  int
		now  time.Time
		want time.Time
	}{
		{"later this month", 20, utc(2026, 3, 10, 9), utc(2026, 3, 20, 0)},
		{"already passed", 5, utc(2026, 3, 10, 9), utc(2026, 4, 5, 0)},
		{"same day after midnight", 10, utc(2026, 3, 10, 9), utc(2026, 4, 10, 0)},
		{"clamped to april 30", 31, utc(2026, 4, 2, 0), utc(2026, 4, 30, 0)},
		{"clamped to february", 30, utc(2026, 2, 1, 0), utc(2026, 2, 28, 0)},
		{"year rollover", 1, utc(2026, 12, 15, 0), utc(2027, 1, 1, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &subscription.Subscription{RenewalDay: tt.day}
			got, ok := sub.NextRenewal(tt.now)
			if !ok {
				t.Fatal("expected a renewal instant")
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextRenewal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextRenewalWithoutDay(t *testing.T) {
	sub := &subscription.Subscription{}
	if _, ok := sub.NextRenewal(time.Now()); ok {
		t.Error("expected no renewal for an unset day")
	}
}

func TestHasCreditAccount(t *testing.T) {
	a, b := id.NewAccountID(), id.NewAccountID()

	open := &subscription.Subscription{}
	if !open.HasCreditAccount(a) {
		t.Error("subscription without a list should fund every account")
	}

	scoped := &subscription.Subscription{CreditAccounts: []id.AccountID{a}}
	if !scoped.HasCreditAccount(a) || scoped.HasCreditAccount(b) {
		t.Error("scoped subscription should fund only listed accounts")
	}
}
