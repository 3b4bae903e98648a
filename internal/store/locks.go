package store

import (
	"context"
	"sync"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
)

// ScopeLocks serializes work per scope key while leaving unrelated scopes free
// to proceed in parallel. Entries are reference counted and dropped once no
// caller holds or waits for them.
type ScopeLocks struct {
	mu    sync.Mutex
	locks map[models.ScopeKey]*scopeLock
}

type scopeLock struct {
	sem  chan struct{}
	refs int
}

func NewScopeLocks() *ScopeLocks {
	return &ScopeLocks{locks: make(map[models.ScopeKey]*scopeLock)}
}

// Acquire blocks until the scope is free or ctx is done. The returned release
// func must be called exactly once.
func (l *ScopeLocks) Acquire(ctx context.Context, key models.ScopeKey) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &scopeLock{sem: make(chan struct{}, 1)}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, lock)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.sem
			l.unref(key, lock)
		})
	}, nil
}

func (l *ScopeLocks) unref(key models.ScopeKey, lock *scopeLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

// Len returns the number of scopes currently held or awaited
func (l *ScopeLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
