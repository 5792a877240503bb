package cache

import (
	"context"
	"sync"
	"time"
)

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// LocalLocker implements Locker in process memory.
// It only serializes callers inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]lockEntry
	now   func() time.Time
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]lockEntry),
		now:   time.Now,
	}
}

// SetClock overrides the time source (tests)
func (l *LocalLocker) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// TryLock acquires key for ttl if it is free or its previous holder expired
func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, exists := l.locks[key]; exists && now.Before(e.expiresAt) {
		return "", false, nil
	}

	token := newLockToken()
	l.locks[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

// Unlock releases key if token still owns it
func (l *LocalLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.locks[key]
	if !exists || e.token != token || !l.now().Before(e.expiresAt) {
		return ErrLockNotHeld
	}
	delete(l.locks, key)
	return nil
}

var _ Locker = (*LocalLocker)(nil)
