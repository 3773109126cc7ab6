package redislock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits/lock"
	"github.com/xraph/credits/lock/redislock"
)

func newLocker(t *testing.T, opts redislock.Options) (*redislock.Locker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := redislock.New(client, opts)
	require.NoError(t, err)
	return l, mr
}

func TestAcquireRelease(t *testing.T) {
	l, mr := newLocker(t, redislock.DefaultOptions())
	ctx := context.Background()

	h, err := l.Acquire(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("credits:lock:org-1"))

	require.NoError(t, h.Release(ctx))
	assert.False(t, mr.Exists("credits:lock:org-1"))
}

func TestAcquireContended(t *testing.T) {
	opts := redislock.DefaultOptions()
	opts.Tries = 2
	opts.RetryDelay = 5 * time.Millisecond
	l, _ := newLocker(t, opts)
	ctx := context.Background()

	h, err := l.Acquire(ctx, "org-1")
	require.NoError(t, err)
	defer h.Release(ctx) //nolint:errcheck

	_, err = l.Acquire(ctx, "org-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, redislock.ErrContended), "got %v", err)

	other, err := l.Acquire(ctx, "org-2")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))
}

func TestReleaseAfterExpiry(t *testing.T) {
	opts := redislock.DefaultOptions()
	opts.Expiry = time.Second
	l, mr := newLocker(t, opts)
	ctx := context.Background()

	h, err := l.Acquire(ctx, "org-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	err = h.Release(ctx)
	assert.ErrorIs(t, err, lock.ErrNotHeld)
}

func TestNewValidatesOptions(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	_, err := redislock.New(client, redislock.Options{Expiry: 0, Tries: 1})
	require.Error(t, err)

	_, err = redislock.New(nil)
	require.Error(t, err)
}
