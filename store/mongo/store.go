// Package mongo implements store.Store on MongoDB. Units of work run in
// multi-document transactions, so the deployment must be a replica set.
//
// Begin serializes writers of one organization on a lock document and
// retries contended transactions with exponential backoff. Unlike the other
// backends, which wait until ctx is done, it gives up after the lock wait
// (10s unless set with WithLockWait) and returns an error wrapping
// credits.ErrLockUnavailable. Callers that need to wait longer should raise it.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/lock"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
)

// Collection name constants.
const (
	colAccounts      = "credit_accounts"
	colTransactions  = "credit_transactions"
	colSubscriptions = "credit_subscriptions"
	colLocks         = "credit_locks"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	locks  *lock.Local

	// lockWait bounds how long Begin retries a contended organization.
	lockWait time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLockWait sets how long Begin keeps retrying while another process
// holds the organization.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) { s.lockWait = d }
}

// New creates a store over a connected client.
func New(client *mongo.Client, database string, opts ...Option) *Store {
	s := &Store{
		client:   client,
		db:       client.Database(database),
		locks:    lock.NewLocal(),
		lockWait: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to uri and verifies the primary is reachable.
func Open(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background()) //nolint:errcheck // the ping error is reported
		return nil, fmt.Errorf("credits/mongo: ping: %w", err)
	}
	return New(client, database, opts...), nil
}

// Database returns the underlying database for direct access.
func (s *Store) Database() *mongo.Database { return s.db }

// Migrate creates indexes for all credit collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: credits/mongo: %s indexes: %w", credits.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.db.Collection(colAccounts).InsertOne(ctx, toAccountModel(a))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: account %s", credits.ErrAlreadyExists, a.ID)
		}
		return fmt.Errorf("credits/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return s.findAccount(ctx, bson.M{"_id": accountID.String()}, credits.ErrAccountNotFound)
}

func (s *Store) GetPlatformAccount(ctx context.Context) (*account.Account, error) {
	return s.findAccount(ctx, bson.M{"type": string(account.TypePlatform)}, credits.ErrPlatformAccountNotFound)
}

func (s *Store) GetLeaseAccount(ctx context.Context, orgID string) (*account.Account, error) {
	return s.findAccount(ctx, bson.M{"organization_id": orgID, "type": string(account.TypeLease)}, credits.ErrLeaseAccountNotFound)
}

func (s *Store) ListAccounts(ctx context.Context, orgID string, opts account.ListOpts) ([]*account.Account, error) {
	cur, err := s.db.Collection(colAccounts).Find(ctx, accountFilter(orgID, opts),
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: list accounts: %w", err)
	}

	var models []accountModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: list accounts: %w", err)
	}

	result := make([]*account.Account, 0, len(models))
	for i := range models {
		a, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

func (s *Store) findAccount(ctx context.Context, filter bson.M, notFound error) (*account.Account, error) {
	var m accountModel
	if err := s.db.Collection(colAccounts).FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, notFound
		}
		return nil, fmt.Errorf("credits/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func accountFilter(orgID string, opts account.ListOpts) bson.M {
	filter := bson.M{"organization_id": orgID}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}
	if !opts.ActiveAt.IsZero() {
		filter["$or"] = bson.A{
			bson.M{"expires": bson.M{"$exists": false}},
			bson.M{"expires": bson.M{"$gt": bsonTime(opts.ActiveAt)}},
		}
	}
	return filter
}

// ==================== Ledger reads ====================

func (s *Store) ListTransactions(ctx context.Context, f transaction.Filter) ([]*transaction.Transaction, int, error) {
	coll := s.db.Collection(colTransactions)
	filter := transactionFilter(f)

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("credits/mongo: count transactions: %w", err)
	}
	if int64(f.Skip) >= total {
		return nil, int(total), nil
	}

	opts := options.Find().SetSort(sortSpec(f.Sort)).SetSkip(int64(f.Skip))
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	rows, err := s.findTransactions(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return rows, int(total), nil
}

func (s *Store) ListGroup(ctx context.Context, groupID id.LeaseID) ([]*transaction.Transaction, error) {
	return s.findTransactions(ctx, bson.M{"group_id": groupID.String()},
		options.Find().SetSort(bson.D{{Key: "line", Value: 1}, {Key: "account_id", Value: 1}}))
}

func (s *Store) findTransactions(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*transaction.Transaction, error) {
	cur, err := s.db.Collection(colTransactions).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: find transactions: %w", err)
	}

	var models []transactionModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: decode transactions: %w", err)
	}

	result := make([]*transaction.Transaction, 0, len(models))
	for i := range models {
		t, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

func (s *Store) Totals(ctx context.Context, accountIDs []id.AccountID, asOf time.Time) (map[id.AccountID]transaction.Totals, error) {
	out := make(map[id.AccountID]transaction.Totals, len(accountIDs))
	if len(accountIDs) == 0 {
		return out, nil
	}
	for _, a := range accountIDs {
		out[a] = transaction.Totals{}
	}

	cur, err := s.db.Collection(colTransactions).Aggregate(ctx, totalsPipeline(accountIDs, asOf))
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: totals: %w", err)
	}

	var results []struct {
		AccountID string `bson:"_id"`
		Settled   int64  `bson:"settled"`
		Pending   int64  `bson:"pending"`
	}
	if err := cur.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("credits/mongo: totals: %w", err)
	}
	for _, r := range results {
		accountID, err := id.ParseAccountID(r.AccountID)
		if err != nil {
			return nil, fmt.Errorf("credits/mongo: totals: %w", err)
		}
		out[accountID] = transaction.Totals{Settled: r.Settled, Pending: r.Pending}
	}
	return out, nil
}

func (s *Store) OpenLeaseHolds(ctx context.Context, leaseAccountID id.AccountID) (map[id.AccountID]int64, error) {
	coll := s.db.Collection(colTransactions)
	lease := leaseAccountID.String()

	cur, err := coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"account_id": lease, "group_id": bson.M{"$exists": true}}}},
		{{Key: "$group", Value: bson.M{
			"_id":     "$group_id",
			"balance": bson.M{"$sum": bson.M{"$subtract": bson.A{"$debit", "$credit"}}},
		}}},
		{{Key: "$match", Value: bson.M{"balance": bson.M{"$ne": 0}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: open leases: %w", err)
	}
	var open []struct {
		GroupID string `bson:"_id"`
	}
	if err := cur.All(ctx, &open); err != nil {
		return nil, fmt.Errorf("credits/mongo: open leases: %w", err)
	}

	holds := make(map[id.AccountID]int64)
	if len(open) == 0 {
		return holds, nil
	}
	groups := make(bson.A, len(open))
	for i, g := range open {
		groups[i] = g.GroupID
	}

	rows, err := s.findTransactions(ctx, bson.M{
		"group_id":   bson.M{"$in": groups},
		"account_id": bson.M{"$ne": lease},
		"operation":  bson.M{"$in": bson.A{string(transaction.OpReservation), string(transaction.OpRefund)}},
	}, options.Find())
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		holds[r.AccountID] -= r.Net()
	}
	return holds, nil
}

func transactionFilter(f transaction.Filter) bson.M {
	filter := bson.M{}
	if !f.AccountID.IsNil() {
		filter["account_id"] = f.AccountID.String()
	}
	if f.Operation != "" {
		filter["operation"] = string(f.Operation)
	}
	created := bson.M{}
	if !f.From.IsZero() {
		created["$gte"] = bsonTime(f.From)
	}
	if !f.To.IsZero() {
		created["$lt"] = bsonTime(f.To)
	}
	if len(created) > 0 {
		filter["created"] = created
	}
	if len(f.ProjectIDs) > 0 {
		filter["project_id"] = bson.M{"$in": f.ProjectIDs}
	}
	if f.Unit != "" {
		filter["requests."+string(f.Unit)] = bson.M{"$exists": true}
	}
	return filter
}

// sortSpec mirrors transaction.SortRows, breaking ties by transfer id.
func sortSpec(expr string) bson.D {
	field, desc, err := transaction.ParseSort(expr)
	if err != nil {
		field, desc = transaction.SortCreated, true
	}
	key := "created"
	if field == transaction.SortCredits {
		key = "credit"
	}
	dir := 1
	if desc {
		dir = -1
	}
	return bson.D{{Key: key, Value: dir}, {Key: "tx_id", Value: dir}}
}

func totalsPipeline(accountIDs []id.AccountID, asOf time.Time) mongo.Pipeline {
	ids := make(bson.A, len(accountIDs))
	for i, a := range accountIDs {
		ids[i] = a.String()
	}
	net := bson.M{"$subtract": bson.A{"$debit", "$credit"}}
	settled := bson.A{"$created", bsonTime(asOf)}
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"account_id": bson.M{"$in": ids}}}},
		{{Key: "$group", Value: bson.M{
			"_id":     "$account_id",
			"settled": bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$lte": settled}, net, 0}}},
			"pending": bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$gt": settled}, net, 0}}},
		}}},
	}
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.db.Collection(colSubscriptions).InsertOne(ctx, toSubscriptionModel(sub))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: subscription for %s", credits.ErrAlreadyExists, sub.OrganizationID)
		}
		return fmt.Errorf("credits/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return s.findSubscription(ctx, bson.M{"_id": subID.String()})
}

func (s *Store) GetSubscriptionByOrganization(ctx context.Context, orgID string) (*subscription.Subscription, error) {
	return s.findSubscription(ctx, bson.M{"organization_id": orgID})
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()

	res, err := s.db.Collection(colSubscriptions).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: subscription for %s", credits.ErrAlreadyExists, sub.OrganizationID)
		}
		return fmt.Errorf("credits/mongo: update subscription: %w", err)
	}
	if res.MatchedCount == 0 {
		return credits.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) GetSubscriptionByLeaseID(ctx context.Context, leaseID id.LeaseID) (*subscription.Subscription, error) {
	var accountIDs []string
	err := s.db.Collection(colTransactions).
		Distinct(ctx, "account_id", bson.M{"group_id": leaseID.String()}).
		Decode(&accountIDs)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: lease accounts: %w", err)
	}
	if len(accountIDs) == 0 {
		return nil, credits.ErrLeaseNotFound
	}

	a, err := s.findAccount(ctx, bson.M{
		"_id":  bson.M{"$in": accountIDs},
		"type": string(account.TypeLease),
	}, credits.ErrLeaseNotFound)
	if err != nil {
		return nil, err
	}
	return s.GetSubscriptionByOrganization(ctx, a.OrganizationID)
}

func (s *Store) findSubscription(ctx context.Context, filter bson.M) (*subscription.Subscription, error) {
	var m subscriptionModel
	if err := s.db.Collection(colSubscriptions).FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all credit collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{
				Keys: bson.D{{Key: "type", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"type": string(account.TypePlatform)}).
					SetName("one_platform_account"),
			},
			{
				Keys: bson.D{{Key: "organization_id", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"type": string(account.TypeLease)}).
					SetName("one_lease_account_per_org"),
			},
			{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "type", Value: 1}}},
		},
		colTransactions: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created", Value: 1}}},
			{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "line", Value: 1}}},
		},
		colSubscriptions: {
			{
				Keys:    bson.D{{Key: "organization_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
