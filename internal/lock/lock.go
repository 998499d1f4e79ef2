// Package lock serializes mutations of a single market. Holders of different
// keys never block each other.
package lock

import (
	"context"
	"errors"
)

// ErrLockTimeout is returned when a lock could not be acquired before the
// context was done.
var ErrLockTimeout = errors.New("lock: timed out waiting for lock")

// Locker acquires an exclusive lock on key. The returned unlock func is safe
// to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

const (
	KeyedBackend = "memory"
	RedisBackend = "redis"
)
