package lock

import (
	"context"
	"sync"
	"time"
)

// Locker grants named exclusive locks with a TTL.
type Locker interface {
	// Acquire returns false when the lock is held by someone else.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	// Release is safe to call for locks that are not held or have expired.
	Release(ctx context.Context, name string) error
}

// Extender is implemented by lockers whose locks can be kept alive.
type Extender interface {
	Extend(ctx context.Context, name string, ttl time.Duration) error
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]time.Time // name -> expiry
	now  func() time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]time.Time), now: time.Now}
}

func (l *Local) Acquire(_ context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.held[name]; ok && now.Before(exp) {
		return false, nil
	}
	l.held[name] = now.Add(ttl)
	return true, nil
}

func (l *Local) Release(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
	return nil
}

func (l *Local) Extend(_ context.Context, name string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; !ok {
		return errNotHeld(name)
	}
	l.held[name] = l.now().Add(ttl)
	return nil
}
