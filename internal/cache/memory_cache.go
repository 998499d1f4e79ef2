package cache

import (
	"context"
	"sync"
	"time"
)

const (
	defaultShardCount      = 64
	defaultJanitorInterval = time.Second
)

type entry[V any] struct {
	value     V
	expiresAt time.Time // zero = never
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

type bucket[V any] struct {
	sync.RWMutex
	entries map[string]entry[V]
}

// MemoryCache is an in-process Cache split into independently locked
// buckets. Entries written with a zero ttl take the cache's default TTL.
type MemoryCache[V any] struct {
	buckets    []*bucket[V]
	defaultTTL time.Duration
	sweepEvery time.Duration
	now        func() time.Time

	stopOnce sync.Once
	quit     chan struct{}
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	shards     int
	defaultTTL time.Duration
	sweepEvery time.Duration
	now        func() time.Time
}

// WithShards sets the number of buckets. Values below one are ignored.
func WithShards(n int) MemoryOption {
	return func(c *memoryConfig) {
		if n > 0 {
			c.shards = n
		}
	}
}

// WithDefaultTTL sets the lifetime of entries written with a zero ttl.
func WithDefaultTTL(ttl time.Duration) MemoryOption {
	return func(c *memoryConfig) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithSweepInterval sets how often expired entries are purged. A
// non-positive interval disables the sweeper; expired entries are then
// dropped lazily on read.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(c *memoryConfig) { c.sweepEvery = d }
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *memoryConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// NewMemoryCache creates a MemoryCache and starts its sweeper.
func NewMemoryCache[V any](opts ...MemoryOption) *MemoryCache[V] {
	cfg := memoryConfig{
		shards:     defaultShardCount,
		sweepEvery: defaultJanitorInterval,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	mc := &MemoryCache[V]{
		buckets:    make([]*bucket[V], cfg.shards),
		defaultTTL: cfg.defaultTTL,
		sweepEvery: cfg.sweepEvery,
		now:        cfg.now,
		quit:       make(chan struct{}),
	}
	for i := range mc.buckets {
		mc.buckets[i] = &bucket[V]{entries: make(map[string]entry[V])}
	}
	if mc.sweepEvery > 0 {
		go mc.sweep()
	}
	return mc
}

// Stop terminates the sweeper. It is safe to call more than once.
func (mc *MemoryCache[V]) Stop() {
	mc.stopOnce.Do(func() { close(mc.quit) })
}

// DefaultTTL reports the lifetime applied to entries written with a zero ttl.
func (mc *MemoryCache[V]) DefaultTTL() time.Duration { return mc.defaultTTL }

// Len counts the live entries.
func (mc *MemoryCache[V]) Len() int {
	now := mc.now()
	n := 0
	for _, b := range mc.buckets {
		b.RLock()
		for _, e := range b.entries {
			if !e.expired(now) {
				n++
			}
		}
		b.RUnlock()
	}
	return n
}

func (mc *MemoryCache[V]) bucketFor(key string) *bucket[V] {
	return mc.buckets[fnv32(key)%uint32(len(mc.buckets))]
}

func fnv32(key string) uint32 {
	const offset = 2166136261
	const prime = 16777619
	h := uint32(offset)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= prime
	}
	return h
}

func (mc *MemoryCache[V]) expiry(ttl time.Duration) time.Time {
	if ttl == 0 {
		ttl = mc.defaultTTL
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return mc.now().Add(ttl)
}

// lookup reads key under b's write lock so an expired entry can be evicted
// in the same critical section.
func (b *bucket[V]) lookup(key string, now time.Time) (V, bool) {
	e, ok := b.entries[key]
	if ok && e.expired(now) {
		delete(b.entries, key)
		ok = false
	}
	return e.value, ok
}

func (mc *MemoryCache[V]) Get(_ context.Context, key string) (V, error) {
	b := mc.bucketFor(key)
	b.Lock()
	v, ok := b.lookup(key, mc.now())
	b.Unlock()
	if !ok {
		var zero V
		return zero, ErrCacheMiss
	}
	return v, nil
}

func (mc *MemoryCache[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	e := entry[V]{value: value, expiresAt: mc.expiry(ttl)}
	b := mc.bucketFor(key)
	b.Lock()
	b.entries[key] = e
	b.Unlock()
	return nil
}

func (mc *MemoryCache[V]) Delete(_ context.Context, key string) error {
	b := mc.bucketFor(key)
	b.Lock()
	delete(b.entries, key)
	b.Unlock()
	return nil
}

func (mc *MemoryCache[V]) MGet(_ context.Context, keys ...string) ([]V, []error) {
	results := make([]V, len(keys))
	errs := make([]error, len(keys))

	byBucket := make(map[*bucket[V]][]int)
	for i, k := range keys {
		b := mc.bucketFor(k)
		byBucket[b] = append(byBucket[b], i)
	}

	now := mc.now()
	for b, idxs := range byBucket {
		b.Lock()
		for _, i := range idxs {
			if v, ok := b.lookup(keys[i], now); ok {
				results[i] = v
			} else {
				errs[i] = ErrCacheMiss
			}
		}
		b.Unlock()
	}
	return results, errs
}

func (mc *MemoryCache[V]) MSet(_ context.Context, kv map[string]V, ttl time.Duration) error {
	expiresAt := mc.expiry(ttl)
	byBucket := make(map[*bucket[V]][]string)
	for k := range kv {
		b := mc.bucketFor(k)
		byBucket[b] = append(byBucket[b], k)
	}
	for b, keys := range byBucket {
		b.Lock()
		for _, k := range keys {
			b.entries[k] = entry[V]{value: kv[k], expiresAt: expiresAt}
		}
		b.Unlock()
	}
	return nil
}

func (mc *MemoryCache[V]) sweep() {
	ticker := time.NewTicker(mc.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			mc.purgeExpired()
		case <-mc.quit:
			return
		}
	}
}

func (mc *MemoryCache[V]) purgeExpired() {
	now := mc.now()
	for _, b := range mc.buckets {
		b.Lock()
		for k, e := range b.entries {
			if e.expired(now) {
				delete(b.entries, k)
			}
		}
		b.Unlock()
	}
}
