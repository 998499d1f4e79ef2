package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/joefazee/parimutuel/internal/logger"
)

// unlockLua deletes the key only if it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisLocker is a Locker shared by every replica, built on SET NX with a TTL
// and a compare-and-delete release.
type RedisLocker struct {
	rdb        *redis.Client
	unlockSc   *redis.Script
	prefix     string
	ttl        time.Duration
	retryEvery time.Duration
	log        logger.Logger
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker. ttl bounds how long a crashed holder can
// keep a key; retryEvery is the polling interval while waiting. Release
// failures are reported to log.
func NewRedisLocker(rdb *redis.Client, prefix string, ttl, retryEvery time.Duration, log logger.Logger) *RedisLocker {
	if log == nil {
		log = logger.NewNullLogger()
	}
	if prefix == "" {
		prefix = "lock:"
	}
	if retryEvery <= 0 {
		retryEvery = 25 * time.Millisecond
	}
	return &RedisLocker{
		rdb:        rdb,
		unlockSc:   redis.NewScript(unlockLua),
		prefix:     prefix,
		ttl:        ttl,
		retryEvery: retryEvery,
		log:        log,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	lk := l.prefix + key

	ticker := time.NewTicker(l.retryEvery)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, lk, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
			}
			return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			l.release(unlockCtx, lk, token)
		})
	}, nil
}

// release deletes lk if it still holds token. A key that expired or was
// taken over is only reported: the holder's critical section already ran.
func (l *RedisLocker) release(ctx context.Context, lk, token string) {
	deleted, err := l.unlockSc.Run(ctx, l.rdb, []string{lk}, token).Int()
	if err != nil {
		l.log.Error(fmt.Errorf("redis: release lock %s: %w", lk, err), map[string]interface{}{
			"lock_key": lk,
		})
		return
	}
	if deleted == 0 {
		l.log.Warn("lock expired before release", map[string]interface{}{
			"lock_key": lk,
			"ttl":      l.ttl.String(),
		})
	}
}
