// Package credits provides a prepaid credit ledger with leasing for Go
// applications.
//
// Credits is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - An append-only, double-entry ledger of integer credits
//   - Platform, asset and lease accounts per organization
//   - Leases that reserve credits before work runs and settle after it
//   - Allocation that spends credits about to expire or renew first
//   - Per-organization serialization through store advisory locks and an
//     optional redis lock
//   - Memory, PostgreSQL, SQLite and MongoDB stores
//
// # Quick Start
//
//	s := memory.New()
//	l := credits.New(s, credits.WithLogger(slog.Default()))
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
//	_, _ = l.EnsurePlatformAccount(ctx)
//	acct, _ := l.OpenAssetAccount(ctx, credits.AssetAccountRequest{OrganizationID: "org_1"})
//	_ = l.FillAccount(ctx, credits.FillRequest{AccountID: acct.ID, Amount: 1000, OrganizationID: "org_1"})
//
// # Leases
//
// A lease reserves credits for an operation whose cost is known only once
// it has run:
//
//	leaseID, err := l.AcquireLease(ctx, credits.LeaseRequest{
//	    Requests:       types.Resources{"image": 40},
//	    Subscription:   sub,
//	    OrganizationID: "org_1",
//	})
//
// The lease is then either canceled, returning every credit, or finalized
// with a meter report, charging what was consumed and returning the rest:
//
//	err = l.FinalizeLease(ctx, &meter.Report{
//	    LeaseID:     leaseID,
//	    Consumption: []meter.Usage{{Unit: "image", Amount: 25}},
//	})
//
// Closing a lease twice is a no-op.
//
// # Ledger rows
//
// Every movement is a transfer written as two rows sharing a transfer id.
// The source row carries the credit and the destination row the debit, so
// an account's balance is the sum of debit minus credit over its rows.
// Rows dated in the future count as incoming until their date.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41   // Account ID
//	lease_01h455vb4pex5vsknk084sn02q  // Lease ID
//	tx_01h455vb4pex5vsknk084sn02q     // Transfer ID
package credits
