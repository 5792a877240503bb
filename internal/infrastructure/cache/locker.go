package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLockNotHeld is returned by Unlock when the key is owned by someone else or has expired
var ErrLockNotHeld = errors.New("cache: lock not held")

// Locker hands out short-lived, token-guarded locks.
// TryLock never blocks: ok is false when another holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

func newLockToken() string {
	return uuid.NewString()
}
