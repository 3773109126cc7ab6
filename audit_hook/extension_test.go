package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	audithook "github.com/xraph/credits/audit_hook"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
)

type sink struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (s *sink) Record(_ context.Context, e *audithook.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func TestExtensionRecordsLeaseLifecycle(t *testing.T) {
	ctx := context.Background()
	rec := &sink{}
	ext := audithook.New(rec)

	leaseID := id.NewLeaseID()
	allocs := []transaction.Allocation{
		{AccountID: id.NewAccountID(), Amount: 30},
		{AccountID: id.NewAccountID(), Amount: 20},
	}
	_ = ext.OnLeaseAcquired(ctx, "org_1", leaseID, allocs)
	_ = ext.OnLeaseFinalized(ctx, "org_1", leaseID, 45, 5)
	_ = ext.OnInsufficientBalance(ctx, "org_1", 10, 50)

	if len(rec.events) != 3 {
		t.Fatalf("recorded %d events, want 3", len(rec.events))
	}

	acquired := rec.events[0]
	if acquired.Action != audithook.ActionLeaseAcquired || acquired.ResourceID != leaseID.String() {
		t.Errorf("acquired event = %+v", acquired)
	}
	if got := acquired.Metadata["amount"]; got != int64(50) {
		t.Errorf("acquired amount = %v, want 50", got)
	}

	finalized := rec.events[1]
	if finalized.Metadata["consumed"] != int64(45) || finalized.Metadata["refunded"] != int64(5) {
		t.Errorf("finalized metadata = %v", finalized.Metadata)
	}

	rejected := rec.events[2]
	if rejected.Outcome != audithook.OutcomeFailure || rejected.Severity != audithook.SeverityWarning {
		t.Errorf("rejection event = %+v", rejected)
	}
	if rejected.Reason == "" {
		t.Error("rejection event has no reason")
	}
}

func TestExtensionActionFilters(t *testing.T) {
	ctx := context.Background()
	acct := id.NewAccountID()

	tests := []struct {
		name string
		opts []audithook.Option
		want []string
	}{
		{"All", nil, []string{audithook.ActionAccountFilled, audithook.ActionCreditsWithdrawn}},
		{"Enabled", []audithook.Option{audithook.WithEnabledActions(audithook.ActionCreditsWithdrawn)},
			[]string{audithook.ActionCreditsWithdrawn}},
		{"Disabled", []audithook.Option{audithook.WithDisabledActions(audithook.ActionCreditsWithdrawn)},
			[]string{audithook.ActionAccountFilled}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &sink{}
			ext := audithook.New(rec, tt.opts...)
			_ = ext.OnAccountFilled(ctx, "org_1", acct, 100)
			_ = ext.OnCreditsWithdrawn(ctx, "org_1", acct, 40)

			if len(rec.events) != len(tt.want) {
				t.Fatalf("recorded %d events, want %d", len(rec.events), len(tt.want))
			}
			for i, action := range tt.want {
				if rec.events[i].Action != action {
					t.Errorf("event %d = %s, want %s", i, rec.events[i].Action, action)
				}
			}
		})
	}
}

func TestExtensionSwallowsRecorderErrors(t *testing.T) {
	failing := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	})
	ext := audithook.New(failing, audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	if err := ext.OnLeaseCanceled(context.Background(), "org_1", id.NewLeaseID(), 10); err != nil {
		t.Fatalf("OnLeaseCanceled returned %v, want nil", err)
	}
}
