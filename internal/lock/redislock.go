package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token, so a
// holder whose lease expired cannot free a lock that another server now owns.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

const (
	defaultRetry    = 10 * time.Millisecond
	defaultMaxRetry = 200 * time.Millisecond
)

// RedisLocker is a SET NX lease lock shared by every ticketd instance using the
// same Redis. Waiters poll with a doubling backoff between RetryBackoff and
// MaxBackoff.
type RedisLocker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

// WithLock runs fn while holding key. fn's context ends when the lease does, so
// a stalled mutation cannot keep writing after another holder took over.
func (l RedisLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return ErrNoCallback
	}
	ttl = normalizeTTL(ttl)
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}
	defer func() {
		_ = releaseScript.Run(context.Background(), l.R, []string{key}, token).Err()
	}()

	leaseCtx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()
	return fn(leaseCtx)
}

func (l RedisLocker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	wait := l.RetryBackoff
	if wait <= 0 {
		wait = defaultRetry
	}
	ceiling := l.MaxBackoff
	if ceiling < wait {
		ceiling = max(wait, defaultMaxRetry)
	}
	var timer *time.Timer
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if timer == nil {
			timer = time.NewTimer(wait)
			defer timer.Stop()
		} else {
			timer.Reset(wait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, ceiling)
	}
}
