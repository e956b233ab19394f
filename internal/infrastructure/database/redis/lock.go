package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

var ErrLockNotHeld = errors.New(errors.ErrCodeConflict, "lock not held by this owner")

var mutexUnlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// LockFactory hands out short-lived exclusive locks.  Workers sharing one
// store take the per-day "notification:<date>" lock so only one of them
// sends a digest.
type LockFactory struct {
	client *Client
	prefix string
	log    logging.Logger
}

func NewLockFactory(client *Client, prefix string, log logging.Logger) *LockFactory {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &LockFactory{client: client, prefix: prefix + "lock:", log: log}
}

// TryLock attempts to take name for ttl without waiting.  When ok is true the
// caller must invoke release; release is a no-op if the lock already expired.
func (f *LockFactory) TryLock(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, ok bool, err error) {
	key := f.prefix + name
	value := uuid.NewString()

	ok, err = f.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to acquire lock").WithDetail(name)
	}
	if !ok {
		f.log.Debug("lock busy", logging.String("lock", name))
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		if f.client.isClosed() {
			return ErrClientClosed
		}
		n, err := mutexUnlockScript.Run(ctx, f.client.GetUnderlyingClient(), []string{key}, value).Int64()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock").WithDetail(name)
		}
		if n == 0 {
			return ErrLockNotHeld
		}
		return nil
	}
	return release, true, nil
}
