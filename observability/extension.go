// Package observability provides a metrics extension for the credit ledger
// that records lifecycle event counts and credit volumes via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/transaction"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnAccountFilled       = (*MetricsExtension)(nil)
	_ plugin.OnCreditsWithdrawn    = (*MetricsExtension)(nil)
	_ plugin.OnInsufficientBalance = (*MetricsExtension)(nil)
	_ plugin.OnLeaseAcquired       = (*MetricsExtension)(nil)
	_ plugin.OnLeaseCanceled       = (*MetricsExtension)(nil)
	_ plugin.OnLeaseFinalized      = (*MetricsExtension)(nil)
	_ plugin.OnLeaseAlreadyClosed  = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a ledger plugin to track credit flows.
type MetricsExtension struct {
	factory MetricFactory

	// Funds metrics
	AccountsFilled   Counter
	CreditsWithdrawn Counter
	FillAmount       Histogram
	WithdrawAmount   Histogram

	// Lease metrics
	LeasesAcquired    Counter
	LeasesCanceled    Counter
	LeasesFinalized   Counter
	LeasesNoop        Counter
	LeaseAmount       Histogram
	LeaseAllocations  Histogram
	ConsumedAmount    Histogram
	RefundedAmount    Histogram
	InsufficientFunds Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		AccountsFilled:   factory.Counter("credits.account.filled"),
		CreditsWithdrawn: factory.Counter("credits.account.withdrawn"),
		FillAmount:       factory.Histogram("credits.account.fill.amount"),
		WithdrawAmount:   factory.Histogram("credits.account.withdraw.amount"),

		LeasesAcquired:    factory.Counter("credits.lease.acquired"),
		LeasesCanceled:    factory.Counter("credits.lease.canceled"),
		LeasesFinalized:   factory.Counter("credits.lease.finalized"),
		LeasesNoop:        factory.Counter("credits.lease.already_closed"),
		LeaseAmount:       factory.Histogram("credits.lease.amount"),
		LeaseAllocations:  factory.Histogram("credits.lease.allocations"),
		ConsumedAmount:    factory.Histogram("credits.lease.consumed"),
		RefundedAmount:    factory.Histogram("credits.lease.refunded"),
		InsufficientFunds: factory.Counter("credits.balance.insufficient"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Funds hooks
// ──────────────────────────────────────────────────

// OnAccountFilled implements plugin.OnAccountFilled.
func (m *MetricsExtension) OnAccountFilled(_ context.Context, _ string, _ id.AccountID, amount int64) error {
	m.AccountsFilled.Inc()
	m.FillAmount.Observe(float64(amount))
	return nil
}

// OnCreditsWithdrawn implements plugin.OnCreditsWithdrawn.
func (m *MetricsExtension) OnCreditsWithdrawn(_ context.Context, _ string, _ id.AccountID, amount int64) error {
	m.CreditsWithdrawn.Inc()
	m.WithdrawAmount.Observe(float64(amount))
	return nil
}

// OnInsufficientBalance implements plugin.OnInsufficientBalance.
func (m *MetricsExtension) OnInsufficientBalance(_ context.Context, _ string, _, _ int64) error {
	m.InsufficientFunds.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Lease hooks
// ──────────────────────────────────────────────────

// OnLeaseAcquired implements plugin.OnLeaseAcquired.
func (m *MetricsExtension) OnLeaseAcquired(_ context.Context, _ string, _ id.LeaseID, allocations []transaction.Allocation) error {
	m.LeasesAcquired.Inc()
	m.LeaseAmount.Observe(float64(transaction.SumAllocations(allocations)))
	m.LeaseAllocations.Observe(float64(len(allocations)))
	return nil
}

// OnLeaseCanceled implements plugin.OnLeaseCanceled.
func (m *MetricsExtension) OnLeaseCanceled(_ context.Context, _ string, _ id.LeaseID, refunded int64) error {
	m.LeasesCanceled.Inc()
	m.RefundedAmount.Observe(float64(refunded))
	return nil
}

// OnLeaseFinalized implements plugin.OnLeaseFinalized.
func (m *MetricsExtension) OnLeaseFinalized(_ context.Context, _ string, _ id.LeaseID, consumed, refunded int64) error {
	m.LeasesFinalized.Inc()
	m.ConsumedAmount.Observe(float64(consumed))
	m.RefundedAmount.Observe(float64(refunded))
	return nil
}

// OnLeaseAlreadyClosed implements plugin.OnLeaseAlreadyClosed.
func (m *MetricsExtension) OnLeaseAlreadyClosed(_ context.Context, _ string, _ id.LeaseID) error {
	m.LeasesNoop.Inc()
	return nil
}
