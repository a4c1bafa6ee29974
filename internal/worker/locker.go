package worker

import (
	"context"
	"sync"
	"time"
)

// Locker grants exclusive, expiring leases on a key. ok is false when the key
// is held by someone else.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// LocalLocker is an in-process Locker for single instance deployments.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]uint64
	until map[string]time.Time
	seq   uint64
	now   func() time.Time
}

// NewLocalLocker builds an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held:  map[string]uint64{},
		until: map[string]time.Time{},
		now:   time.Now,
	}
}

// TryLock implements Locker.
func (l *LocalLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if _, ok := l.held[key]; ok && now.Before(l.until[key]) {
		return nil, false, nil
	}
	l.seq++
	token := l.seq
	l.held[key] = token
	l.until[key] = now.Add(ttl)

	unlock := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key] == token {
			delete(l.held, key)
			delete(l.until, key)
		}
		return nil
	}
	return unlock, true, nil
}
