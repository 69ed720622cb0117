package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/academy/billing/internal/domain/billing"
	"github.com/google/uuid"
)

// InMemoryLocker implements billing.SubscriptionLocker for a single
// process. Idle entries are dropped on release.
type InMemoryLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*memLock
}

type memLock struct {
	ch      chan struct{}
	waiters int
}

var _ billing.SubscriptionLocker = (*InMemoryLocker)(nil)

// NewInMemoryLocker creates an empty locker.
func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{locks: make(map[uuid.UUID]*memLock)}
}

// Lock blocks until the subscription lock is held or ctx ends.
func (l *InMemoryLocker) Lock(ctx context.Context, subscriptionID uuid.UUID) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[subscriptionID]
	if !ok {
		lk = &memLock{ch: make(chan struct{}, 1)}
		l.locks[subscriptionID] = lk
	}
	lk.waiters++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.leave(subscriptionID, lk)
		return func() {}, fmt.Errorf("%w: %v", ErrLockNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.ch
			l.leave(subscriptionID, lk)
		})
	}, nil
}

func (l *InMemoryLocker) leave(id uuid.UUID, lk *memLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.waiters--
	if lk.waiters == 0 {
		delete(l.locks, id)
	}
}

// Len returns the number of subscriptions with holders or waiters.
func (l *InMemoryLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
