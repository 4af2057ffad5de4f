// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"time"

	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/ports/adapter"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ adapter.Locker = (*RedisLocker)(nil)

type RedisLocker struct {
	cli      *redis.Client
	attempts int
	backoff  time.Duration
}

// NewLocker retries SETNX up to attempts times, sleeping backoff in between.
func NewLocker(c *Client, attempts int, backoff time.Duration) *RedisLocker {
	if attempts <= 0 {
		attempts = 1
	}
	return &RedisLocker{cli: c.cli, attempts: attempts, backoff: backoff}
}

// NewSingleShotLocker never retries: a held key means another run owns it.
func NewSingleShotLocker(c *Client) *RedisLocker {
	return NewLocker(c, 1, 0)
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < l.attempts; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return token, nil
		}
		if i+1 < l.attempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(l.backoff): // wait before retrying
			}
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", domain.ErrLockNotAcquired
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}
