package credits

import (
	"github.com/xraph/credits/balance"
	"github.com/xraph/credits/types"
)

// Re-export common types for convenience so users don't have to import the
// types and balance packages.

// Resources is re-exported from types package.
type Resources = types.Resources

// Unit is re-exported from types package.
type Unit = types.Unit

// Entity is re-exported from types package.
type Entity = types.Entity

// Balance is re-exported from balance package.
type Balance = balance.Balance

// Re-export Entity constructor
var NewEntity = types.NewEntity
