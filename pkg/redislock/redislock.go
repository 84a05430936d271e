// Package redislock implements short-lived named locks on top of Redis.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNotAcquired is returned when the lock could not be taken before the timeout.
var ErrNotAcquired = errors.New("lock not acquired")

// ErrNotHeld is returned by Release when the lock expired or was taken over.
var ErrNotHeld = errors.New("lock no longer held")

const defaultRetryInterval = 100 * time.Millisecond

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Releaser releases a held lock.
type Releaser interface {
	Release(ctx context.Context) error
}

// Locker hands out named locks scoped to a resource id.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger zerolog.Logger
}

// New constructs a Locker. ttl bounds how long a crashed holder can keep the lock.
func New(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Locker{
		client: client,
		ttl:    ttl,
		retry:  defaultRetryInterval,
		logger: logger.With().Str("component", "redislock").Logger(),
	}
}

// WithRetryInterval overrides the polling interval used while waiting for the lock.
func (l *Locker) WithRetryInterval(interval time.Duration) *Locker {
	if interval > 0 {
		l.retry = interval
	}
	return l
}

// Key returns the redis key guarding name/resourceID.
func Key(name string, resourceID uint) string {
	return fmt.Sprintf("lock:%s:%d", name, resourceID)
}

// Acquire takes the lock, polling until timeout elapses. A zero timeout tries once.
func (l *Locker) Acquire(ctx context.Context, name string, resourceID uint, timeout time.Duration) (Releaser, error) {
	key := Key(name, resourceID)
	token := uuid.NewString()
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			l.logger.Debug().Str("key", key).Msg("lock acquired")
			return &lock{client: l.client, key: key, token: token, logger: l.logger}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrNotAcquired
		}

		wait := l.retry
		if remaining < wait {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

type lock struct {
	client *redis.Client
	key    string
	token  string
	logger zerolog.Logger
}

func (l *lock) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if deleted == 0 {
		l.logger.Warn().Str("key", l.key).Msg("lock expired before release")
		return ErrNotHeld
	}
	l.logger.Debug().Str("key", l.key).Msg("lock released")
	return nil
}
