// Package account defines credit accounts: the single platform mint, one
// lease (escrow) account per organization, and any number of asset accounts.
package account

import (
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

type Type string

const (
	// TypePlatform is the system-wide mint and sink.
	TypePlatform Type = "PLATFORM"
	// TypeAsset holds an organization's spendable credits.
	TypeAsset Type = "ASSET"
	// TypeLease holds an organization's reserved credits.
	TypeLease Type = "LEASE"
)

// Valid reports whether t is a known account type.
func (t Type) Valid() bool {
	switch t {
	case TypePlatform, TypeAsset, TypeLease:
		return true
	}
	return false
}

type Account struct {
	types.Entity
	ID              id.AccountID `json:"id"`
	OrganizationID  string       `json:"organization_id,omitempty"`
	Type            Type         `json:"type"`
	Expires         *time.Time   `json:"expires,omitempty"`
	RenewableAmount *int64       `json:"renewable_amount,omitempty"`
}

// Expired reports whether the account has an expiry at or before now.
func (a *Account) Expired(now time.Time) bool {
	return a.Expires != nil && !a.Expires.After(now)
}

// Renews reports whether the account is topped up periodically.
func (a *Account) Renews() bool {
	return a.RenewableAmount != nil && *a.RenewableAmount > 0
}

type ListOpts struct {
	// Type filters by account type when set.
	Type Type
	// ActiveAt, when non-zero, excludes accounts expired at that instant.
	ActiveAt time.Time
}

// Matches reports whether a satisfies the filter.
func (o ListOpts) Matches(a *Account) bool {
	if o.Type != "" && a.Type != o.Type {
		return false
	}
	if !o.ActiveAt.IsZero() && a.Expired(o.ActiveAt) {
		return false
	}
	return true
}
