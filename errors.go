package credits

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("credits: not found")
	ErrAlreadyExists = errors.New("credits: already exists")
	ErrInvalidInput  = errors.New("credits: invalid input")

	// Account errors
	ErrAccountNotFound         = errors.New("credits: account not found")
	ErrPlatformAccountNotFound = errors.New("credits: platform account not found")
	ErrLeaseAccountNotFound    = errors.New("credits: lease account not found")

	// Lease errors
	ErrLeaseNotFound        = errors.New("credits: lease not found")
	ErrInsufficientBalance  = errors.New("credits: insufficient balance")
	ErrOverConsumption      = errors.New("credits: consumption exceeds leased amount")
	ErrAllocationIncomplete = errors.New("credits: allocation could not satisfy request")
	ErrRefundExceedsLease   = errors.New("credits: refund exceeds leased amount")
	ErrConservationViolated = errors.New("credits: lease did not close to a zero balance")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("credits: subscription not found")

	// Store errors
	ErrStoreNotReady     = errors.New("credits: store not ready")
	ErrStoreClosed       = errors.New("credits: store is closed")
	ErrTransactionFailed = errors.New("credits: transaction failed")
	ErrMigrationFailed   = errors.New("credits: migration failed")
	ErrLockUnavailable   = errors.New("credits: organization lock unavailable")
)

// ValidationError represents a rejected input. It matches ErrInvalidInput
// with errors.Is and unwraps to a more specific cause when one is set.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("credits: validation failed for %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientBalanceError reports a shortfall before any row is written.
type InsufficientBalanceError struct {
	Available int64
	Required  int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("credits: insufficient balance: available %d, required %d", e.Available, e.Required)
}

// Is reports whether target is ErrInsufficientBalance.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// Shortfall is the number of credits missing.
func (e *InsufficientBalanceError) Shortfall() int64 {
	return e.Required - e.Available
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrPlatformAccountNotFound) ||
		errors.Is(err, ErrLeaseAccountNotFound) ||
		errors.Is(err, ErrLeaseNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsValidation returns true if the input was rejected before any mutation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsDefect returns true if the error signals a broken ledger invariant.
func IsDefect(err error) bool {
	return errors.Is(err, ErrAllocationIncomplete) ||
		errors.Is(err, ErrRefundExceedsLease) ||
		errors.Is(err, ErrConservationViolated)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrLockUnavailable)
}
