// Package redislock implements lock.Locker with the Redlock algorithm over
// Redis, so organization locks hold across service instances.
//
// Acquire does not wait indefinitely. It makes at most Options.Tries
// attempts, Options.RetryDelay apart, and then returns ErrContended even if
// ctx is still live. Size the budget to cover the longest expected unit of
// work; Options.Expiry bounds how long a crashed holder blocks others.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/credits/lock"
)

// ErrContended is returned when the lock could not be acquired within the
// configured number of tries.
var ErrContended = errors.New("redislock: lock contended")

// Options tunes the underlying redsync mutex.
type Options struct {
	// Prefix is prepended to every key.
	Prefix string
	// Expiry bounds how long a crashed holder can keep the lock.
	Expiry time.Duration
	// Tries is the number of acquisition attempts.
	Tries int
	// RetryDelay is the wait between attempts.
	RetryDelay time.Duration
	// DriftFactor accounts for clock drift between Redis nodes.
	DriftFactor float64
}

// DefaultOptions returns the options used by New when none are given.
func DefaultOptions() Options {
	return Options{
		Prefix:      "credits:lock:",
		Expiry:      10 * time.Second,
		Tries:       32,
		RetryDelay:  100 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

func (o Options) validate() error {
	switch {
	case o.Expiry <= 0:
		return errors.New("redislock: expiry must be greater than 0")
	case o.Tries < 1:
		return errors.New("redislock: tries must be at least 1")
	case o.RetryDelay < 0:
		return errors.New("redislock: retry delay cannot be negative")
	case o.DriftFactor < 0 || o.DriftFactor >= 1:
		return errors.New("redislock: drift factor must be in [0, 1)")
	}
	return nil
}

// Locker is a distributed lock.Locker.
type Locker struct {
	rs   *redsync.Redsync
	opts Options
}

var _ lock.Locker = (*Locker)(nil)

// New returns a Locker backed by the given Redis client.
func New(client redis.UniversalClient, opts ...Options) (*Locker, error) {
	if client == nil {
		return nil, errors.New("redislock: redis client is nil")
	}
	o := DefaultOptions()
	if len(opts) > 0 {
		o = opts[0]
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &Locker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: o,
	}, nil
}

// Acquire implements lock.Locker.
func (l *Locker) Acquire(ctx context.Context, key string) (lock.Handle, error) {
	if key == "" {
		return nil, errors.New("redislock: key cannot be empty")
	}
	m := l.rs.NewMutex(l.opts.Prefix+key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
		redsync.WithDriftFactor(l.opts.DriftFactor),
	)
	if err := m.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if isContention(err) {
			return nil, fmt.Errorf("%w: %s", ErrContended, key)
		}
		return nil, fmt.Errorf("redislock: acquire %s: %w", key, err)
	}
	return &handle{m: m}, nil
}

type handle struct {
	m *redsync.Mutex
}

func (h *handle) Release(ctx context.Context) error {
	ok, err := h.m.UnlockContext(ctx)
	if !ok {
		if err != nil {
			return fmt.Errorf("%w: %s: %v", lock.ErrNotHeld, h.m.Name(), err)
		}
		return lock.ErrNotHeld
	}
	if err != nil {
		return fmt.Errorf("redislock: release %s: %w", h.m.Name(), err)
	}
	return nil
}

// redsync reports contention as ErrFailed or as a "lock already taken"
// error carrying the failing nodes.
func isContention(err error) bool {
	return errors.Is(err, redsync.ErrFailed) ||
		strings.Contains(err.Error(), "lock already taken") ||
		strings.Contains(err.Error(), "failed to acquire lock")
}
