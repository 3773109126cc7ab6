package sqlite_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/meter"
	"github.com/xraph/credits/store/sqlite"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/types"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "credits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "file:/tmp/c.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate",
		sqlite.DSN("/tmp/c.db"))
	assert.Equal(t, "file:c.db?mode=ro", sqlite.DSN("file:c.db?mode=ro"))
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestAccounts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	platform := &account.Account{Entity: types.NewEntity(now), ID: id.NewAccountID(), Type: account.TypePlatform}
	require.NoError(t, s.CreateAccount(ctx, platform))

	second := &account.Account{Entity: types.NewEntity(now), ID: id.NewAccountID(), Type: account.TypePlatform}
	assert.ErrorIs(t, s.CreateAccount(ctx, second), credits.ErrAlreadyExists)

	got, err := s.GetPlatformAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, platform.ID, got.ID)

	expires := now.Add(time.Hour)
	renew := int64(500)
	asset := &account.Account{
		Entity:          types.NewEntity(now),
		ID:              id.NewAccountID(),
		OrganizationID:  "org_1",
		Type:            account.TypeAsset,
		Expires:         &expires,
		RenewableAmount: &renew,
	}
	require.NoError(t, s.CreateAccount(ctx, asset))

	got, err = s.GetAccount(ctx, asset.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Expires)
	assert.True(t, expires.Equal(*got.Expires))
	require.NotNil(t, got.RenewableAmount)
	assert.Equal(t, int64(500), *got.RenewableAmount)

	active, err := s.ListAccounts(ctx, "org_1", account.ListOpts{Type: account.TypeAsset, ActiveAt: now})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	expired, err := s.ListAccounts(ctx, "org_1", account.ListOpts{Type: account.TypeAsset, ActiveAt: expires})
	require.NoError(t, err)
	assert.Empty(t, expired)

	_, err = s.GetAccount(ctx, id.NewAccountID())
	assert.ErrorIs(t, err, credits.ErrAccountNotFound)
	_, err = s.GetLeaseAccount(ctx, "org_1")
	assert.ErrorIs(t, err, credits.ErrLeaseAccountNotFound)
}

func TestSubscriptions(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	acct := id.NewAccountID()
	sub := &subscription.Subscription{
		Entity:         types.NewEntity(time.Time{}),
		ID:             id.NewSubscriptionID(),
		OrganizationID: "org_1",
		Status:         subscription.StatusActive,
		RenewalDay:     15,
		CreditAccounts: []id.AccountID{acct},
	}
	require.NoError(t, s.CreateSubscription(ctx, sub))
	assert.ErrorIs(t, s.CreateSubscription(ctx, sub), credits.ErrAlreadyExists)

	got, err := s.GetSubscriptionByOrganization(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)
	assert.Equal(t, []id.AccountID{acct}, got.CreditAccounts)
	assert.Equal(t, 15, got.RenewalDay)

	sub.Status = subscription.StatusCanceled
	require.NoError(t, s.UpdateSubscription(ctx, sub))
	got, err = s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, got.Status)

	missing := *sub
	missing.ID = id.NewSubscriptionID()
	assert.ErrorIs(t, s.UpdateSubscription(ctx, &missing), credits.ErrSubscriptionNotFound)
	_, err = s.GetSubscriptionByOrganization(ctx, "org_2")
	assert.ErrorIs(t, err, credits.ErrSubscriptionNotFound)
}

func TestUnitOfWorkRollback(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	from := &account.Account{Entity: types.NewEntity(now), ID: id.NewAccountID(), Type: account.TypePlatform}
	to := &account.Account{Entity: types.NewEntity(now), ID: id.NewAccountID(), OrganizationID: "org_1", Type: account.TypeAsset}
	require.NoError(t, s.CreateAccount(ctx, from))
	require.NoError(t, s.CreateAccount(ctx, to))

	rows, err := transaction.Transfer{From: from.ID, To: to.ID, Amount: 10, Created: now, Operation: transaction.OpFill}.Rows()
	require.NoError(t, err)

	tx, err := s.Begin(ctx, "org_1")
	require.NoError(t, err)
	require.NoError(t, tx.InsertTransactions(ctx, rows...))
	require.NoError(t, tx.Rollback())

	all, total, err := s.ListTransactions(ctx, transaction.Filter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, all)

	tx, err = s.Begin(ctx, "org_1")
	require.NoError(t, err)
	require.NoError(t, tx.InsertTransactions(ctx, rows...))
	require.NoError(t, tx.Commit())

	totals, err := s.Totals(ctx, []id.AccountID{from.ID, to.ID}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(-10), totals[from.ID].Settled)
	assert.Equal(t, int64(10), totals[to.ID].Settled)
}

// TestLedger runs the lease lifecycle end to end on SQLite.
func TestLedger(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	l := credits.New(s, credits.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, l.Start(ctx))

	_, err := l.EnsurePlatformAccount(ctx)
	require.NoError(t, err)

	soon := time.Now().Add(48 * time.Hour)
	first, err := l.OpenAssetAccount(ctx, credits.AssetAccountRequest{OrganizationID: "org_1", Expires: &soon})
	require.NoError(t, err)
	second, err := l.OpenAssetAccount(ctx, credits.AssetAccountRequest{OrganizationID: "org_1"})
	require.NoError(t, err)

	require.NoError(t, l.FillAccount(ctx, credits.FillRequest{AccountID: first.ID, Amount: 30, OrganizationID: "org_1"}))
	require.NoError(t, l.FillAccount(ctx, credits.FillRequest{AccountID: second.ID, Amount: 100, OrganizationID: "org_1"}))

	sub := &subscription.Subscription{
		Entity:         types.NewEntity(time.Time{}),
		ID:             id.NewSubscriptionID(),
		OrganizationID: "org_1",
		Status:         subscription.StatusActive,
	}
	require.NoError(t, s.CreateSubscription(ctx, sub))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		leases []id.LeaseID
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			leaseID, err := l.AcquireLease(ctx, credits.LeaseRequest{
				Requests:       types.Resources{"image": 20},
				Subscription:   sub,
				OrganizationID: "org_1",
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			leases = append(leases, leaseID)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, leases, 5)

	bal, err := l.Balance(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, int64(30), bal.Available)
	assert.Equal(t, int64(100), bal.Blocked)

	balances, err := l.AccountBalances(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balances[first.ID].Available)
	assert.Equal(t, int64(30), balances[first.ID].Blocked)

	for i, leaseID := range leases {
		if i%2 == 0 {
			require.NoError(t, l.CancelLease(ctx, leaseID))
			continue
		}
		require.NoError(t, l.FinalizeLease(ctx, &meter.Report{
			LeaseID:     leaseID,
			Consumption: []meter.Usage{{Unit: "image", Amount: 5}},
			ProjectID:   "alpha",
		}))
	}
	require.NoError(t, l.CancelLease(ctx, leases[0]))

	bal, err = l.Balance(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, int64(120), bal.Available)
	assert.Zero(t, bal.Blocked)

	page, err := l.GetTransactions(ctx, "org_1", transaction.Query{Unit: "image"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	agg, err := l.AggregateTransactions(ctx, "org_1", transaction.AggregateQuery{
		Keys: []transaction.Dimension{transaction.DimensionProject},
	})
	require.NoError(t, err)
	require.Len(t, agg, 1)
	assert.Equal(t, int64(10), agg[0].Credits)
	assert.Equal(t, int64(10), agg[0].Resources["image"])

	status, err := l.LeaseStatus(ctx, leases[1])
	require.NoError(t, err)
	assert.False(t, status.Open)
	assert.Equal(t, int64(5), status.Consumed)
	assert.Equal(t, int64(15), status.Refunded)
}
