package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	RedisBackend  = "redis"
	MemoryBackend = "memory"
)

var (
	ErrCacheMiss      = errors.New("cache: key not found")
	ErrUnknownBackend = errors.New("cache: unknown backend")
)

// Cache is our generic cache interface.
type Cache[V any] interface {
	// Get returns the value or ErrCacheMiss.
	Get(ctx context.Context, key string) (V, error)
	// Set stores value under key, with TTL. Zero ttl takes the backend
	// default, which is no expiration unless the backend was given one.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	// Delete removes the key.
	Delete(ctx context.Context, key string) error
	// MGet returns multiple values; missing ones are zero-value + ErrCacheMiss.
	MGet(ctx context.Context, keys ...string) ([]V, []error)
	// MSet sets multiple key/value pairs with same TTL.
	MSet(ctx context.Context, kv map[string]V, ttl time.Duration) error
}

// NewCache builds a cache for backend. The redis backend needs *RedisOptions;
// the memory backend accepts any number of MemoryOption values.
func NewCache[V any](backend string, opts ...interface{}) (Cache[V], error) {
	switch backend {
	case RedisBackend:
		if len(opts) == 0 {
			return nil, fmt.Errorf("%w: redis backend requires options", ErrUnknownBackend)
		}
		ro, ok := opts[0].(*RedisOptions)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected redis options %T", ErrUnknownBackend, opts[0])
		}
		return NewRedisCache[V](ro), nil
	case MemoryBackend:
		var memOpts []MemoryOption
		for _, o := range opts {
			mo, ok := o.(MemoryOption)
			if !ok {
				return nil, fmt.Errorf("%w: unexpected memory option %T", ErrUnknownBackend, o)
			}
			memOpts = append(memOpts, mo)
		}
		return NewMemoryCache[V](memOpts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
