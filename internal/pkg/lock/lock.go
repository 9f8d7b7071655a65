// Package lock provides Redis backed distributed mutexes for jobs that must
// run on a single instance at a time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrNotAcquired is returned when another holder owns the lock
var ErrNotAcquired = errors.New("lock not acquired")

const keyPrefix = "pptmaker:lock:"

// Locker hands out named mutexes. A nil Locker runs every critical section
// unguarded, which is what single-instance development setups want.
type Locker struct {
	rs *redsync.Redsync
}

// New creates a Locker on top of a go-redis client
func New(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{rs: redsync.New(goredis.NewPool(client))}
}

// WithLock runs fn while holding the named lock. The lock is not retried:
// if someone else holds it, ErrNotAcquired is returned and fn is skipped.
func (l *Locker) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}

	mutex := l.rs.NewMutex(keyPrefix+name, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		return acquireError(name, err)
	}
	defer func() {
		// Use a fresh context so a cancelled job still releases its lock.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			log.Warn().Err(err).Str("lock", name).Msg("Failed to release lock")
		}
	}()

	return fn(ctx)
}

// acquireError maps contention to ErrNotAcquired. Anything else, such as an
// unreachable Redis, is returned as a plain failure.
func acquireError(name string, err error) error {
	var taken *redsync.ErrTaken
	var nodeTaken *redsync.ErrNodeTaken
	if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) || errors.As(err, &nodeTaken) {
		return fmt.Errorf("%w: %s: %v", ErrNotAcquired, name, err)
	}
	return fmt.Errorf("acquire lock %s: %w", name, err)
}
