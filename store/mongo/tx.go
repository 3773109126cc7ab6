package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/lock"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/transaction"
)

// Server error labels and codes that make a transaction worth retrying.
const (
	labelTransient     = "TransientTransactionError"
	labelUnknownCommit = "UnknownTransactionCommitResult"
	codeWriteConflict  = 112
)

// Begin starts a snapshot transaction and claims the organization by
// writing its lock document. A concurrent unit holding the same document
// makes the write conflict, in which case the attempt is retried with
// exponential backoff until lockWait elapses.
func (s *Store) Begin(ctx context.Context, orgID string) (store.Tx, error) {
	h, err := s.locks.Acquire(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", credits.ErrLockUnavailable, err)
	}

	t, err := backoff.Retry(ctx, func() (*tx, error) {
		return s.begin(ctx, orgID)
	},
		backoff.WithBackOff(newBackOff()),
		backoff.WithMaxElapsedTime(s.lockWait),
	)
	if err != nil {
		_ = h.Release(context.Background()) //nolint:errcheck // the begin error is reported
		return nil, fmt.Errorf("%w: credits/mongo: %w", credits.ErrLockUnavailable, err)
	}
	t.handle = h
	return t, nil
}

func (s *Store) begin(ctx context.Context, orgID string) (*tx, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := sess.StartTransaction(txOpts); err != nil {
		sess.EndSession(ctx)
		return nil, backoff.Permanent(err)
	}

	_, err = s.db.Collection(colLocks).UpdateOne(
		mongo.NewSessionContext(ctx, sess),
		bson.M{"_id": orgID},
		bson.M{"$inc": bson.M{"seq": 1}, "$set": bson.M{"touched_at": now()}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		_ = sess.AbortTransaction(ctx) //nolint:errcheck // the claim error is reported
		sess.EndSession(ctx)
		if isContention(err) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}
	return &tx{s: s, sess: sess}, nil
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	return b
}

// isContention reports whether err came from another transaction touching
// the same documents. Concurrent upserts of a missing lock document race on
// _id, which surfaces as a duplicate key.
func isContention(err error) bool {
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorLabel(labelTransient) || se.HasErrorCode(codeWriteConflict)
}

type tx struct {
	s      *Store
	sess   *mongo.Session
	handle lock.Handle

	mu   sync.Mutex
	done bool
}

func (t *tx) sessionContext(ctx context.Context) (context.Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil, store.ErrTxDone
	}
	return mongo.NewSessionContext(ctx, t.sess), nil
}

func (t *tx) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	sctx, err := t.sessionContext(ctx)
	if err != nil {
		return nil, err
	}
	return t.s.GetAccount(sctx, accountID)
}

func (t *tx) GetPlatformAccount(ctx context.Context) (*account.Account, error) {
	sctx, err := t.sessionContext(ctx)
	if err != nil {
		return nil, err
	}
	return t.s.GetPlatformAccount(sctx)
}

func (t *tx) GetLeaseAccount(ctx context.Context, orgID string) (*account.Account, error) {
	sctx, err := t.sessionContext(ctx)
	if err != nil {
		return nil, err
	}
	return t.s.GetLeaseAccount(sctx, orgID)
}

func (t *tx) ListAccounts(ctx context.Context, orgID string, opts account.ListOpts) ([]*account.Account, error) {
	sctx, err := t.sessionContext(ctx)
	if err != nil {
		return nil, err
	}
	return t.s.ListAccounts(sctx, orgID, opts)
}

func (t *tx) InsertTransactions(ctx context.Context, rows ...*transaction.Transaction) error {
	if len(rows) == 0 {
		return nil
	}
	sctx, err := t.sessionContext(ctx)
	if err != nil {
		return err
	}

	docs := make([]any, len(rows))
	for i, r := range rows {
		docs[i] = toTransactionModel(r)
	}
	if _, err := t.s.db.Collection(colTransactions).InsertMany(sctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: transaction rows", credits.ErrAlreadyExists)
		}
		return fmt.Errorf("credits/mongo: insert transactions: %w", err)
	}
	return nil
}

func (t *tx) GroupBalance(ctx context.Context, groupID id.LeaseID, accountID id.AccountID) (int64, error) {
	rows, err := t.ListGroup(ctx, groupID)
	if err != nil {
		return 0, err
	}
	return transaction.RunningBalance(rows, accountID), nil
}

func (t *tx) ListGroup(ctx context.Context, groupID id.LeaseID) ([]*transaction.Transaction, error) {
	sctx, err := t.sessionContext(ctx)
	if err != nil {
		return nil, err
	}
	return t.s.ListGroup(sctx, groupID)
}

// Commit retries only when the server cannot say whether the commit
// applied; committing twice is safe in that state.
func (t *tx) Commit() error {
	return t.finish(func(ctx context.Context) error {
		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			err := t.sess.CommitTransaction(ctx)
			var se mongo.ServerError
			if err != nil && !(errors.As(err, &se) && se.HasErrorLabel(labelUnknownCommit)) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		},
			backoff.WithBackOff(newBackOff()),
			backoff.WithMaxTries(5),
		)
		if err != nil {
			return fmt.Errorf("%w: credits/mongo: commit: %w", credits.ErrTransactionFailed, err)
		}
		return nil
	})
}

func (t *tx) Rollback() error {
	return t.finish(func(ctx context.Context) error {
		return t.sess.AbortTransaction(ctx)
	})
}

func (t *tx) finish(end func(context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return store.ErrTxDone
	}
	t.done = true

	ctx := context.Background()
	err := end(ctx)
	t.sess.EndSession(ctx)
	return errors.Join(err, t.handle.Release(ctx))
}
