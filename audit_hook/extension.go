// Package audithook bridges credit ledger lifecycle events to an audit
// trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any audit product. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/transaction"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnAccountFilled       = (*Extension)(nil)
	_ plugin.OnCreditsWithdrawn    = (*Extension)(nil)
	_ plugin.OnInsufficientBalance = (*Extension)(nil)
	_ plugin.OnLeaseAcquired       = (*Extension)(nil)
	_ plugin.OnLeaseCanceled       = (*Extension)(nil)
	_ plugin.OnLeaseFinalized      = (*Extension)(nil)
	_ plugin.OnLeaseAlreadyClosed  = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Funds hooks
// ──────────────────────────────────────────────────

// OnAccountFilled implements plugin.OnAccountFilled.
func (e *Extension) OnAccountFilled(ctx context.Context, orgID string, accountID id.AccountID, amount int64) error {
	return e.record(ctx, ActionAccountFilled, SeverityInfo, OutcomeSuccess,
		ResourceAccount, accountID.String(), CategoryFunds, nil,
		"org_id", orgID,
		"amount", amount,
	)
}

// OnCreditsWithdrawn implements plugin.OnCreditsWithdrawn.
func (e *Extension) OnCreditsWithdrawn(ctx context.Context, orgID string, accountID id.AccountID, amount int64) error {
	return e.record(ctx, ActionCreditsWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceAccount, accountID.String(), CategoryFunds, nil,
		"org_id", orgID,
		"amount", amount,
	)
}

// OnInsufficientBalance implements plugin.OnInsufficientBalance.
func (e *Extension) OnInsufficientBalance(ctx context.Context, orgID string, available, required int64) error {
	return e.record(ctx, ActionInsufficientBalance, SeverityWarning, OutcomeFailure,
		ResourceOrganization, orgID, CategoryFunds,
		fmt.Errorf("available %d, required %d", available, required),
		"available", available,
		"required", required,
	)
}

// ──────────────────────────────────────────────────
// Lease hooks
// ──────────────────────────────────────────────────

// OnLeaseAcquired implements plugin.OnLeaseAcquired.
func (e *Extension) OnLeaseAcquired(ctx context.Context, orgID string, leaseID id.LeaseID, allocations []transaction.Allocation) error {
	accounts := make([]string, len(allocations))
	for i, a := range allocations {
		accounts[i] = a.AccountID.String()
	}
	return e.record(ctx, ActionLeaseAcquired, SeverityInfo, OutcomeSuccess,
		ResourceLease, leaseID.String(), CategoryUsage, nil,
		"org_id", orgID,
		"amount", transaction.SumAllocations(allocations),
		"accounts", accounts,
	)
}

// OnLeaseCanceled implements plugin.OnLeaseCanceled.
func (e *Extension) OnLeaseCanceled(ctx context.Context, orgID string, leaseID id.LeaseID, refunded int64) error {
	return e.record(ctx, ActionLeaseCanceled, SeverityInfo, OutcomeSuccess,
		ResourceLease, leaseID.String(), CategoryUsage, nil,
		"org_id", orgID,
		"refunded", refunded,
	)
}

// OnLeaseFinalized implements plugin.OnLeaseFinalized.
func (e *Extension) OnLeaseFinalized(ctx context.Context, orgID string, leaseID id.LeaseID, consumed, refunded int64) error {
	return e.record(ctx, ActionLeaseFinalized, SeverityInfo, OutcomeSuccess,
		ResourceLease, leaseID.String(), CategoryUsage, nil,
		"org_id", orgID,
		"consumed", consumed,
		"refunded", refunded,
	)
}

// OnLeaseAlreadyClosed implements plugin.OnLeaseAlreadyClosed.
func (e *Extension) OnLeaseAlreadyClosed(ctx context.Context, orgID string, leaseID id.LeaseID) error {
	return e.record(ctx, ActionLeaseAlreadyClosed, SeverityInfo, OutcomePartial,
		ResourceLease, leaseID.String(), CategoryUsage, nil,
		"org_id", orgID,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
