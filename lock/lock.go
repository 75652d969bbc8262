// Package lock defines the mutual exclusion contract used around the final
// persist step of a document, plus an in-process implementation.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotHeld indicates a lock was released twice or lost its lease.
var ErrNotHeld = errors.New("lock not held")

// Locker acquires write locks on resource keys.
type Locker interface {
	// Acquire blocks until the lock for key is held or ctx is done.
	Acquire(ctx context.Context, key string) (Lock, error)
}

// Lock is a held write lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Local is a Locker for a single process.
// It only excludes goroutines of the same process; use a cluster-wide
// Locker when several processes share a store.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*Local)(nil)

// NewLocal creates an in-process Locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

// Acquire blocks until key is free or ctx is done.
func (l *Local) Acquire(ctx context.Context, key string) (Lock, error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return &localLock{owner: l, key: key, entry: e}, nil
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}
}

func (l *Local) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

type localLock struct {
	owner *Local
	key   string
	entry *entry
	once  sync.Once
}

func (l *localLock) Release(ctx context.Context) error {
	released := false
	l.once.Do(func() {
		<-l.entry.ch
		l.owner.unref(l.key, l.entry)
		released = true
	})
	if !released {
		return ErrNotHeld
	}
	return nil
}
