package audithook

// Action constants for audit events.
const (
	// Funds actions
	ActionAccountFilled       = "account.filled"
	ActionCreditsWithdrawn    = "account.withdrawn"
	ActionInsufficientBalance = "balance.insufficient"

	// Lease actions
	ActionLeaseAcquired      = "lease.acquired"
	ActionLeaseCanceled      = "lease.canceled"
	ActionLeaseFinalized     = "lease.finalized"
	ActionLeaseAlreadyClosed = "lease.already_closed"
)

// Resource constants for audit events.
const (
	ResourceAccount      = "account"
	ResourceLease        = "lease"
	ResourceOrganization = "organization"
)

// Category constants for audit events.
const (
	CategoryFunds = "funds"
	CategoryUsage = "usage"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
