package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCacheBasicAndEdgeCases(t *testing.T) {
	mc := NewMemoryCache[string]()
	defer mc.Stop()
	ctx := context.Background()

	assert.NoError(t, mc.Set(ctx, "key", "value", 0))
	v, err := mc.Get(ctx, "key")
	assert.NoError(t, err)
	assert.Equal(t, "value", v)

	_, err = mc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.NoError(t, mc.Set(ctx, "temp", "x", 50*time.Millisecond))
	time.Sleep(100 * time.Millisecond)
	_, err = mc.Get(ctx, "temp")
	assert.ErrorIs(t, err, ErrCacheMiss)

	data := map[string]string{"a": "1", "b": "2"}
	assert.NoError(t, mc.MSet(ctx, data, 0))
	vals, errs := mc.MGet(ctx, "a", "b", "c")
	assert.Len(t, vals, 3)
	assert.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.Equal(t, "1", vals[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, "2", vals[1])
	assert.ErrorIs(t, errs[2], ErrCacheMiss)

	assert.NoError(t, mc.Delete(ctx, "a"))
	_, err = mc.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheStructValues(t *testing.T) {
	mc := NewMemoryCache[poolView](WithShards(4), WithSweepInterval(time.Hour))
	defer mc.Stop()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("market:%d", i)
		want := poolView{MarketID: key, Pool: uint64(i * 100)}
		assert.NoError(t, mc.Set(ctx, key, want, 0))
		v, err := mc.Get(ctx, key)
		assert.NoError(t, err)
		assert.Equal(t, want, v)
	}
}

func TestMemoryCacheStopIdempotent(t *testing.T) {
	mc := NewMemoryCache[string]()
	assert.NotPanics(t, func() {
		mc.Stop()
		mc.Stop()
	})
}

func TestMemoryCacheConcurrency(t *testing.T) {
	mc := NewMemoryCache[int]()
	defer mc.Stop()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = mc.Set(ctx, fmt.Sprintf("key%d", i), i, 0)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = mc.Get(ctx, fmt.Sprintf("key%d", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 100; i++ {
		v, err := mc.Get(ctx, fmt.Sprintf("key%d", i))
		assert.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestMemoryCacheJanitorCleansExpiredEntries(t *testing.T) {
	interval := 10 * time.Millisecond
	mc := NewMemoryCache[string](WithShards(4), WithSweepInterval(interval))
	defer mc.Stop()
	ctx := context.Background()

	ttl := 20 * time.Millisecond
	assert.NoError(t, mc.Set(ctx, "to_clean", "value", ttl))

	assert.Eventually(t, func() bool {
		for _, b := range mc.buckets {
			b.RLock()
			_, ok := b.entries["to_clean"]
			b.RUnlock()
			if ok {
				return false
			}
		}
		return true
	}, time.Second, interval, "expired entry should have been removed by janitor")
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryCacheDefaultTTLAppliesToZeroTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache[string](WithDefaultTTL(30*time.Second), WithSweepInterval(0), WithClock(clock.Now))
	defer mc.Stop()
	ctx := context.Background()

	assert.Equal(t, 30*time.Second, mc.DefaultTTL())
	assert.NoError(t, mc.Set(ctx, "single", "v", 0))
	assert.NoError(t, mc.MSet(ctx, map[string]string{"a": "1", "b": "2"}, 0))
	assert.NoError(t, mc.Set(ctx, "explicit", "v", time.Minute))
	assert.Equal(t, 4, mc.Len())

	clock.Advance(29 * time.Second)
	_, err := mc.Get(ctx, "single")
	assert.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = mc.Get(ctx, "single")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, errs := mc.MGet(ctx, "a", "b", "explicit")
	assert.ErrorIs(t, errs[0], ErrCacheMiss)
	assert.ErrorIs(t, errs[1], ErrCacheMiss)
	assert.NoError(t, errs[2])
	assert.Equal(t, 1, mc.Len())
}

func TestMemoryCacheWithoutDefaultTTLKeepsZeroTTLEntries(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache[string](WithSweepInterval(0), WithClock(clock.Now))
	defer mc.Stop()
	ctx := context.Background()

	assert.NoError(t, mc.Set(ctx, "k", "v", 0))
	clock.Advance(24 * time.Hour)
	v, err := mc.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestMemoryCachePurgeExpired(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache[int](WithShards(2), WithSweepInterval(0), WithClock(clock.Now))
	defer mc.Stop()
	ctx := context.Background()

	assert.NoError(t, mc.Set(ctx, "short", 1, time.Second))
	assert.NoError(t, mc.Set(ctx, "long", 2, time.Hour))
	clock.Advance(time.Minute)
	mc.purgeExpired()

	stored := 0
	for _, b := range mc.buckets {
		stored += len(b.entries)
	}
	assert.Equal(t, 1, stored)
}
