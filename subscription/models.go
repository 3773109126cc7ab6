package subscription

import (
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

type Subscription struct {
	types.Entity
	ID             id.SubscriptionID `json:"id"`
	OrganizationID string            `json:"organization_id"`
	Status         Status            `json:"status"`
	// RenewalDay is the day of month (1-31) renewable accounts top up on.
	RenewalDay     int            `json:"renewal_day"`
	CreditAccounts []id.AccountID `json:"credit_accounts,omitempty"`
}

// NextRenewal returns the first renewal instant strictly after now, at
// midnight UTC. Days past the end of a month clamp to its last day.
func (s *Subscription) NextRenewal(now time.Time) (time.Time, bool) {
	if s == nil || s.RenewalDay < 1 || s.RenewalDay > 31 {
		return time.Time{}, false
	}
	now = now.UTC()
	year, month := now.Year(), now.Month()
	for i := 0; i < 2; i++ {
		at := renewalIn(year, month, s.RenewalDay)
		if at.After(now) {
			return at, true
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	return renewalIn(year, month, s.RenewalDay), true
}

// HasCreditAccount reports whether the subscription funds the account. A
// subscription without an explicit list funds all organization accounts.
func (s *Subscription) HasCreditAccount(accountID id.AccountID) bool {
	if len(s.CreditAccounts) == 0 {
		return true
	}
	for _, a := range s.CreditAccounts {
		if a == accountID {
			return true
		}
	}
	return false
}

func renewalIn(year int, month time.Month, day int) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
