package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/types"
)

var accountCols = []string{"id", "organization_id", "type", "expires", "renewable_amount", "created_at", "updated_at"}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestCreateAccount(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()
	a := &account.Account{
		Entity:         types.NewEntity(time.Now()),
		ID:             id.NewAccountID(),
		OrganizationID: "org_1",
		Type:           account.TypeAsset,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO credit_accounts (id, organization_id, type, expires, renewable_amount, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`)).
		WithArgs(a.ID.String(), "org_1", "ASSET", nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.CreateAccount(ctx, a))

	mock.ExpectExec(`INSERT INTO credit_accounts`).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	err := s.CreateAccount(ctx, a)
	assert.ErrorIs(t, err, credits.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLeaseAccount(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()
	leaseID := id.NewAccountID()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM credit_accounts WHERE organization_id = $1 AND type = $2 LIMIT 1`)).
		WithArgs("org_1", "LEASE").
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(leaseID.String(), "org_1", "LEASE", nil, nil, now, now))

	a, err := s.GetLeaseAccount(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, leaseID, a.ID)
	assert.Equal(t, account.TypeLease, a.Type)
	assert.Nil(t, a.Expires)
	assert.Equal(t, now, a.CreatedAt)

	mock.ExpectQuery(`FROM credit_accounts WHERE organization_id`).
		WithArgs("org_2", "LEASE").
		WillReturnRows(sqlmock.NewRows(accountCols))

	_, err = s.GetLeaseAccount(ctx, "org_2")
	assert.ErrorIs(t, err, credits.ErrLeaseAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginTakesAdvisoryLock(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	rows, err := transaction.Transfer{
		From:      id.NewAccountID(),
		To:        id.NewAccountID(),
		Amount:    25,
		Created:   time.Now(),
		Operation: transaction.OpFill,
	}.Rows()
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`)).
		WithArgs("org_1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	for _, r := range rows {
		mock.ExpectExec(`INSERT INTO credit_transactions`).
			WithArgs(r.TxID.String(), nil, r.AccountID.String(), r.Debit, r.Credit, sqlmock.AnyArg(),
				"", "", nil, "fill", 0).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	tx, err := s.Begin(ctx, "org_1")
	require.NoError(t, err)
	require.NoError(t, tx.InsertTransactions(ctx, rows...))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginLockFailure(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	_, err := s.Begin(context.Background(), "org_1")
	assert.ErrorIs(t, err, credits.ErrLockUnavailable)
	assert.True(t, credits.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTotals(t *testing.T) {
	s, mock := newMock(t)
	a, b := id.NewAccountID(), id.NewAccountID()

	mock.ExpectQuery(`SUM\(CASE WHEN created <= \$1 THEN debit - credit ELSE 0 END\)`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), a.String(), b.String()).
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "settled", "pending"}).
			AddRow(a.String(), int64(70), int64(30)))

	totals, err := s.Totals(context.Background(), []id.AccountID{a, b}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, transaction.Totals{Settled: 70, Pending: 30}, totals[a])
	assert.Equal(t, transaction.Totals{}, totals[b])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTransactionsFilter(t *testing.T) {
	s, mock := newMock(t)
	leaseAcct := id.NewAccountID()
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	f := transaction.Filter{
		AccountID:  leaseAcct,
		Operation:  transaction.OpConsumption,
		From:       from,
		ProjectIDs: []string{"alpha", "beta"},
		Unit:       "image",
		Sort:       transaction.SortCreditsDesc,
		Skip:       5,
		Limit:      10,
	}

	where := `WHERE account_id = $1 AND operation = $2 AND created >= $3 AND project_id IN ($4, $5) AND jsonb_exists(requests, $6)`
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM credit_transactions ` + where)).
		WithArgs(leaseAcct.String(), "consumption", from, "alpha", "beta", "image").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))

	txID, leaseID := id.NewTransferID(), id.NewLeaseID()
	mock.ExpectQuery(regexp.QuoteMeta(`requests::text, operation, line FROM credit_transactions ` + where + ` ORDER BY credit DESC, tx_id DESC LIMIT $7 OFFSET $8`)).
		WithArgs(leaseAcct.String(), "consumption", from, "alpha", "beta", "image", int64(10), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{
			"tx_id", "group_id", "account_id", "debit", "credit", "created",
			"project_id", "service_name", "requests", "operation", "line",
		}).AddRow(txID.String(), leaseID.String(), leaseAcct.String(), int64(0), int64(40), from,
			"alpha", "render", `{"image": 40}`, "consumption", int64(2)))

	rows, total, err := s.ListTransactions(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	require.Len(t, rows, 1)
	assert.Equal(t, txID, rows[0].TxID)
	assert.Equal(t, leaseID, rows[0].GroupID)
	assert.Equal(t, int64(40), rows[0].Credit)
	assert.Equal(t, types.Resources{"image": 40}, rows[0].Requests)
	assert.Equal(t, 2, rows[0].Line)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubscriptionByLeaseIDUnknown(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`JOIN credit_accounts a ON a.id = t.account_id`).
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}))

	_, err := s.GetSubscriptionByLeaseID(context.Background(), id.NewLeaseID())
	assert.ErrorIs(t, err, credits.ErrLeaseNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
