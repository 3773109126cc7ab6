package credits_test

import (
	"context"
	"log"
	"log/slog"
	"testing"

	"github.com/xraph/credits"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/meter"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/types"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation work as written.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		ctx := context.Background()

		// Create store (memory for demo, use PostgreSQL in production)
		s := memory.New()

		l := credits.New(s, credits.WithLogger(slog.Default()))
		if err := l.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer l.Stop()

		if _, err := l.EnsurePlatformAccount(ctx); err != nil {
			t.Fatal(err)
		}
		acct, err := l.OpenAssetAccount(ctx, credits.AssetAccountRequest{OrganizationID: "org_1"})
		if err != nil {
			t.Fatal(err)
		}
		if err := l.FillAccount(ctx, credits.FillRequest{AccountID: acct.ID, Amount: 1000, OrganizationID: "org_1"}); err != nil {
			t.Fatal(err)
		}

		sub := &subscription.Subscription{
			ID:             id.NewSubscriptionID(),
			OrganizationID: "org_1",
			Status:         subscription.StatusActive,
		}
		if err := s.CreateSubscription(ctx, sub); err != nil {
			t.Fatal(err)
		}

		leaseID, err := l.AcquireLease(ctx, credits.LeaseRequest{
			Requests:       types.Resources{"image": 40},
			Subscription:   sub,
			OrganizationID: "org_1",
		})
		if err != nil {
			t.Fatal(err)
		}

		err = l.FinalizeLease(ctx, &meter.Report{
			LeaseID:     leaseID,
			Consumption: []meter.Usage{{Unit: "image", Amount: 25}},
		})
		if err != nil {
			t.Fatal(err)
		}

		bal, err := l.Balance(ctx, sub)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("Available credits: %d\n", bal.Available)

		if bal.Available != 975 {
			t.Errorf("available = %d, want 975", bal.Available)
		}
	})

	t.Run("TypeIDExamples", func(t *testing.T) {
		for _, s := range []string{
			id.NewAccountID().String(),
			id.NewLeaseID().String(),
			id.NewTransferID().String(),
		} {
			if _, err := id.Parse(s); err != nil {
				t.Errorf("Parse(%q): %v", s, err)
			}
		}
	})
}
