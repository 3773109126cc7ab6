// Package lock provides keyed mutual exclusion used to serialize mutating
// ledger operations per organization.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotHeld is returned when releasing a lock that is no longer held.
var ErrNotHeld = errors.New("lock: not held")

// Locker acquires exclusive locks by key.
type Locker interface {
	// Acquire blocks until the key is locked or ctx is done.
	Acquire(ctx context.Context, key string) (Handle, error)
}

// Handle releases an acquired lock.
type Handle interface {
	Release(ctx context.Context) error
}

// Local is an in-process keyed mutex. The zero value is ready to use.
type Local struct {
	mu   sync.Mutex
	keys map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
	return &Local{}
}

// Acquire implements Locker.
func (l *Local) Acquire(ctx context.Context, key string) (Handle, error) {
	l.mu.Lock()
	if l.keys == nil {
		l.keys = make(map[string]*keyLock)
	}
	k, ok := l.keys[key]
	if !ok {
		k = &keyLock{sem: make(chan struct{}, 1)}
		l.keys[key] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.sem <- struct{}{}:
		return &localHandle{owner: l, key: key, k: k}, nil
	case <-ctx.Done():
		l.drop(key, k)
		return nil, ctx.Err()
	}
}

func (l *Local) drop(key string, k *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k.refs--
	if k.refs == 0 {
		delete(l.keys, key)
	}
}

type localHandle struct {
	owner *Local
	key   string
	k     *keyLock
	once  sync.Once
}

func (h *localHandle) Release(context.Context) error {
	err := ErrNotHeld
	h.once.Do(func() {
		<-h.k.sem
		h.owner.drop(h.key, h.k)
		err = nil
	})
	return err
}
