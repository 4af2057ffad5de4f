package adapter

import (
	"context"
	"time"
)

// Locker is a best-effort distributed mutex keyed by name.
type Locker interface {
	// TryLock returns a token owning key for ttl, or domain.ErrLockNotAcquired.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
