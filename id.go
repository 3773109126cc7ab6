package credits

import "github.com/xraph/credits/id"

// ID is the primary identifier type for all ledger entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// AccountID identifies an account.
type AccountID = id.AccountID

// LeaseID identifies a lease.
type LeaseID = id.LeaseID
