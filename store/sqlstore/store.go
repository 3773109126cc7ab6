package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/lock"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs dialect-rebound queries against a database or a transaction.
type conn struct {
	q querier
	d Dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.d.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.d.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.rebind(query), args...)
}

func (c conn) errorf(op string, err error) error {
	return fmt.Errorf("%s: %s: %w", c.d.Name, op, err)
}

// Store implements store.Store over a *sql.DB.
type Store struct {
	conn
	db    *sql.DB
	locks *lock.Local
}

// New returns a store over db speaking the given dialect.
func New(db *sql.DB, d Dialect) *Store {
	s := &Store{conn: conn{q: db, d: d}, db: db}
	if d.LocalLock {
		s.locks = lock.NewLocal()
	}
	return s
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// ==================== Account Store ====================

const accountColumns = `id, organization_id, type, expires, renewable_amount, created_at, updated_at`

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	var expires, renewable any
	if a.Expires != nil {
		expires = s.d.timeArg(*a.Expires)
	}
	if a.RenewableAmount != nil {
		renewable = *a.RenewableAmount
	}
	_, err := s.exec(ctx,
		`INSERT INTO credit_accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.OrganizationID, string(a.Type), expires, renewable,
		s.d.timeArg(a.CreatedAt), s.d.timeArg(a.UpdatedAt),
	)
	if err != nil {
		if s.d.IsUniqueViolation != nil && s.d.IsUniqueViolation(err) {
			return credits.ErrAlreadyExists
		}
		return s.errorf("create account", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return s.conn.getAccount(ctx, accountID)
}

func (s *Store) GetPlatformAccount(ctx context.Context) (*account.Account, error) {
	return s.conn.platformAccount(ctx)
}

func (s *Store) GetLeaseAccount(ctx context.Context, orgID string) (*account.Account, error) {
	return s.conn.leaseAccount(ctx, orgID)
}

func (s *Store) ListAccounts(ctx context.Context, orgID string, opts account.ListOpts) ([]*account.Account, error) {
	return s.conn.listAccounts(ctx, orgID, opts)
}

func (c conn) getAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	row := c.queryRow(ctx, `SELECT `+accountColumns+` FROM credit_accounts WHERE id = ?`, accountID.String())
	return c.oneAccount(row, credits.ErrAccountNotFound, "get account")
}

func (c conn) platformAccount(ctx context.Context) (*account.Account, error) {
	row := c.queryRow(ctx, `SELECT `+accountColumns+` FROM credit_accounts WHERE type = ? LIMIT 1`, string(account.TypePlatform))
	return c.oneAccount(row, credits.ErrPlatformAccountNotFound, "get platform account")
}

func (c conn) leaseAccount(ctx context.Context, orgID string) (*account.Account, error) {
	row := c.queryRow(ctx,
		`SELECT `+accountColumns+` FROM credit_accounts WHERE organization_id = ? AND type = ? LIMIT 1`,
		orgID, string(account.TypeLease),
	)
	return c.oneAccount(row, credits.ErrLeaseAccountNotFound, "get lease account")
}

func (c conn) oneAccount(row *sql.Row, notFound error, op string) (*account.Account, error) {
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound
		}
		return nil, c.errorf(op, err)
	}
	return a, nil
}

func (c conn) listAccounts(ctx context.Context, orgID string, opts account.ListOpts) ([]*account.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM credit_accounts WHERE organization_id = ?`
	args := []any{orgID}
	if opts.Type != "" {
		q += ` AND type = ?`
		args = append(args, string(opts.Type))
	}
	if !opts.ActiveAt.IsZero() {
		q += ` AND (expires IS NULL OR expires > ?)`
		args = append(args, c.d.timeArg(opts.ActiveAt))
	}
	q += ` ORDER BY id`

	rows, err := c.query(ctx, q, args...)
	if err != nil {
		return nil, c.errorf("list accounts", err)
	}
	defer rows.Close()

	result := make([]*account.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, c.errorf("scan account", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, c.errorf("list accounts", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(sc scanner) (*account.Account, error) {
	var (
		a                account.Account
		rawID, typ       string
		expires          nullTime
		renewable        sql.NullInt64
		created, updated nullTime
	)
	if err := sc.Scan(&rawID, &a.OrganizationID, &typ, &expires, &renewable, &created, &updated); err != nil {
		return nil, err
	}
	accountID, err := id.ParseAccountID(rawID)
	if err != nil {
		return nil, err
	}
	a.ID = accountID
	a.Type = account.Type(typ)
	if expires.Valid {
		t := expires.Time
		a.Expires = &t
	}
	if renewable.Valid {
		v := renewable.Int64
		a.RenewableAmount = &v
	}
	a.CreatedAt, a.UpdatedAt = created.Time, updated.Time
	return &a, nil
}

// ==================== Ledger reads ====================

func (c conn) transactionColumns() string {
	return `tx_id, group_id, account_id, debit, credit, created, project_id, service_name, ` +
		c.d.jsonText("requests") + `, operation, line`
}

func scanTransaction(sc scanner) (*transaction.Transaction, error) {
	var (
		t                   transaction.Transaction
		rawTx, rawAccount   string
		group               sql.NullString
		created             nullTime
		requests            types.Resources
		operation           string
		debit, credit, line int64
	)
	if err := sc.Scan(&rawTx, &group, &rawAccount, &debit, &credit, &created,
		&t.ProjectID, &t.ServiceName, &requests, &operation, &line); err != nil {
		return nil, err
	}

	var err error
	if t.TxID, err = id.ParseTransferID(rawTx); err != nil {
		return nil, err
	}
	if t.AccountID, err = id.ParseAccountID(rawAccount); err != nil {
		return nil, err
	}
	if group.Valid && group.String != "" {
		if t.GroupID, err = id.ParseLeaseID(group.String); err != nil {
			return nil, err
		}
	}
	t.Debit, t.Credit = debit, credit
	t.Created = created.Time
	t.Requests = requests
	t.Operation = transaction.Operation(operation)
	t.Line = int(line)
	return &t, nil
}

func (c conn) scanTransactions(rows *sql.Rows) ([]*transaction.Transaction, error) {
	defer rows.Close()

	result := make([]*transaction.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, c.errorf("scan transaction", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, c.errorf("read transactions", err)
	}
	return result, nil
}

func (s *Store) ListTransactions(ctx context.Context, f transaction.Filter) ([]*transaction.Transaction, int, error) {
	where, args := s.filterClause(f)

	var total int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM credit_transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, s.errorf("count transactions", err)
	}
	if f.Skip >= total {
		return []*transaction.Transaction{}, total, nil
	}

	q := `SELECT ` + s.transactionColumns() + ` FROM credit_transactions` + where + ` ORDER BY ` + orderBy(f.Sort)
	if f.Limit > 0 || f.Skip > 0 {
		limit := int64(math.MaxInt64)
		if f.Limit > 0 {
			limit = int64(f.Limit)
		}
		q += ` LIMIT ? OFFSET ?`
		args = append(args, limit, int64(f.Skip))
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, 0, s.errorf("list transactions", err)
	}
	result, err := s.scanTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (c conn) filterClause(f transaction.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !f.AccountID.IsNil() {
		conds = append(conds, `account_id = ?`)
		args = append(args, f.AccountID.String())
	}
	if f.Operation != "" {
		conds = append(conds, `operation = ?`)
		args = append(args, string(f.Operation))
	}
	if !f.From.IsZero() {
		conds = append(conds, `created >= ?`)
		args = append(args, c.d.timeArg(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, `created < ?`)
		args = append(args, c.d.timeArg(f.To))
	}
	if len(f.ProjectIDs) > 0 {
		conds = append(conds, `project_id IN (`+placeholders(len(f.ProjectIDs))+`)`)
		for _, p := range f.ProjectIDs {
			args = append(args, p)
		}
	}
	if f.Unit != "" && c.d.HasKey != nil {
		conds = append(conds, c.d.HasKey("requests"))
		args = append(args, string(f.Unit))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(conds, ` AND `), args
}

// orderBy mirrors transaction.SortRows: ties break on tx_id in the same
// direction.
func orderBy(expr string) string {
	field, desc, err := transaction.ParseSort(expr)
	if err != nil {
		field, desc = transaction.SortCreated, true
	}
	col := "created"
	if field == transaction.SortCredits {
		col = "credit"
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return col + " " + dir + ", tx_id " + dir
}

func (s *Store) ListGroup(ctx context.Context, groupID id.LeaseID) ([]*transaction.Transaction, error) {
	return s.conn.listGroup(ctx, groupID)
}

func (c conn) listGroup(ctx context.Context, groupID id.LeaseID) ([]*transaction.Transaction, error) {
	rows, err := c.query(ctx,
		`SELECT `+c.transactionColumns()+` FROM credit_transactions WHERE group_id = ? ORDER BY line, account_id`,
		groupID.String(),
	)
	if err != nil {
		return nil, c.errorf("list group", err)
	}
	return c.scanTransactions(rows)
}

func (s *Store) Totals(ctx context.Context, accountIDs []id.AccountID, asOf time.Time) (map[id.AccountID]transaction.Totals, error) {
	out := make(map[id.AccountID]transaction.Totals, len(accountIDs))
	if len(accountIDs) == 0 {
		return out, nil
	}

	at := s.d.timeArg(asOf)
	args := []any{at, at}
	for _, a := range accountIDs {
		out[a] = transaction.Totals{}
		args = append(args, a.String())
	}

	rows, err := s.query(ctx, `
SELECT account_id,
       COALESCE(SUM(CASE WHEN created <= ? THEN debit - credit ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN created > ? THEN debit - credit ELSE 0 END), 0)
FROM credit_transactions
WHERE account_id IN (`+placeholders(len(accountIDs))+`)
GROUP BY account_id`, args...)
	if err != nil {
		return nil, s.errorf("account totals", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			raw              string
			settled, pending int64
		)
		if err := rows.Scan(&raw, &settled, &pending); err != nil {
			return nil, s.errorf("scan totals", err)
		}
		accountID, err := id.ParseAccountID(raw)
		if err != nil {
			return nil, s.errorf("scan totals", err)
		}
		out[accountID] = transaction.Totals{Settled: settled, Pending: pending}
	}
	if err := rows.Err(); err != nil {
		return nil, s.errorf("account totals", err)
	}
	return out, nil
}

func (s *Store) OpenLeaseHolds(ctx context.Context, leaseAccountID id.AccountID) (map[id.AccountID]int64, error) {
	lease := leaseAccountID.String()
	rows, err := s.query(ctx, `
SELECT t.account_id, COALESCE(SUM(t.credit - t.debit), 0)
FROM credit_transactions t
WHERE t.account_id <> ?
  AND t.operation IN (?, ?)
  AND t.group_id IN (
    SELECT g.group_id
    FROM credit_transactions g
    WHERE g.account_id = ? AND g.group_id IS NOT NULL
    GROUP BY g.group_id
    HAVING SUM(g.debit - g.credit) <> 0
  )
GROUP BY t.account_id`,
		lease, string(transaction.OpReservation), string(transaction.OpRefund), lease,
	)
	if err != nil {
		return nil, s.errorf("open lease holds", err)
	}
	defer rows.Close()

	holds := make(map[id.AccountID]int64)
	for rows.Next() {
		var (
			raw  string
			held int64
		)
		if err := rows.Scan(&raw, &held); err != nil {
			return nil, s.errorf("scan holds", err)
		}
		accountID, err := id.ParseAccountID(raw)
		if err != nil {
			return nil, s.errorf("scan holds", err)
		}
		holds[accountID] = held
	}
	if err := rows.Err(); err != nil {
		return nil, s.errorf("open lease holds", err)
	}
	return holds, nil
}

// ==================== Subscription Store ====================

func (c conn) subscriptionColumns() string {
	return `id, organization_id, status, renewal_day, ` + c.d.jsonText("credit_accounts") + `, created_at, updated_at`
}

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.exec(ctx, `
INSERT INTO credit_subscriptions (id, organization_id, status, renewal_day, credit_accounts, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID.String(), sub.OrganizationID, string(sub.Status), sub.RenewalDay, toIDList(sub.CreditAccounts),
		s.d.timeArg(sub.CreatedAt), s.d.timeArg(sub.UpdatedAt),
	)
	if err != nil {
		if s.d.IsUniqueViolation != nil && s.d.IsUniqueViolation(err) {
			return credits.ErrAlreadyExists
		}
		return s.errorf("create subscription", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	row := s.queryRow(ctx, `SELECT `+s.subscriptionColumns()+` FROM credit_subscriptions WHERE id = ?`, subID.String())
	return s.oneSubscription(row)
}

func (s *Store) GetSubscriptionByOrganization(ctx context.Context, orgID string) (*subscription.Subscription, error) {
	row := s.queryRow(ctx, `SELECT `+s.subscriptionColumns()+` FROM credit_subscriptions WHERE organization_id = ?`, orgID)
	return s.oneSubscription(row)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	res, err := s.exec(ctx, `
UPDATE credit_subscriptions
SET organization_id = ?, status = ?, renewal_day = ?, credit_accounts = ?, updated_at = ?
WHERE id = ?`,
		sub.OrganizationID, string(sub.Status), sub.RenewalDay, toIDList(sub.CreditAccounts),
		s.d.timeArg(sub.UpdatedAt), sub.ID.String(),
	)
	if err != nil {
		return s.errorf("update subscription", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.errorf("update subscription", err)
	}
	if n == 0 {
		return credits.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) GetSubscriptionByLeaseID(ctx context.Context, leaseID id.LeaseID) (*subscription.Subscription, error) {
	var orgID string
	err := s.queryRow(ctx, `
SELECT a.organization_id
FROM credit_transactions t
JOIN credit_accounts a ON a.id = t.account_id
WHERE t.group_id = ? AND a.type = ?
LIMIT 1`, leaseID.String(), string(account.TypeLease)).Scan(&orgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, credits.ErrLeaseNotFound
		}
		return nil, s.errorf("resolve lease", err)
	}
	return s.GetSubscriptionByOrganization(ctx, orgID)
}

func (s *Store) oneSubscription(row *sql.Row) (*subscription.Subscription, error) {
	var (
		sub              subscription.Subscription
		rawID, status    string
		accounts         idList
		created, updated nullTime
	)
	err := row.Scan(&rawID, &sub.OrganizationID, &status, &sub.RenewalDay, &accounts, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, credits.ErrSubscriptionNotFound
		}
		return nil, s.errorf("get subscription", err)
	}
	if sub.ID, err = id.ParseSubscriptionID(rawID); err != nil {
		return nil, s.errorf("get subscription", err)
	}
	sub.Status = subscription.Status(status)
	for _, raw := range accounts {
		accountID, err := id.ParseAccountID(raw)
		if err != nil {
			return nil, s.errorf("get subscription", err)
		}
		sub.CreditAccounts = append(sub.CreditAccounts, accountID)
	}
	sub.CreatedAt, sub.UpdatedAt = created.Time, updated.Time
	return &sub, nil
}

func toIDList(ids []id.AccountID) idList {
	out := make(idList, 0, len(ids))
	for _, a := range ids {
		out = append(out, a.String())
	}
	return out
}

// ==================== Lifecycle ====================

// Migrate applies the dialect's pending migrations, each in its own
// transaction, recording them in credit_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS credit_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL
)`); err != nil {
		return s.errorf("create migrations table", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, m := range s.d.Migrations {
		if applied[m.Version] {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return s.errorf("migration "+m.Name, err)
		}
	}
	return nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM credit_migrations`)
	if err != nil {
		return nil, s.errorf("read migrations", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, s.errorf("read migrations", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (s *Store) apply(ctx context.Context, m Migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		_ = tx.Rollback() //nolint:errcheck // the exec error is reported
		return err
	}
	if _, err := tx.ExecContext(ctx, s.d.rebind(`INSERT INTO credit_migrations (version, name, applied_at) VALUES (?, ?, ?)`),
		m.Version, m.Name, time.Now().UTC().Format(time.RFC3339)); err != nil {
		_ = tx.Rollback() //nolint:errcheck // the exec error is reported
		return err
	}
	return tx.Commit()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
