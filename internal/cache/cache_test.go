package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type poolView struct {
	MarketID string `json:"market_id"`
	Pool     uint64 `json:"pool"`
	Resolved bool   `json:"resolved"`
}

func TestNewCacheMemory(t *testing.T) {
	c, err := NewCache[poolView](MemoryBackend)
	require.NoError(t, err)
	m, ok := c.(*MemoryCache[poolView])
	require.True(t, ok, "expected *MemoryCache[poolView]")
	defer m.Stop()
	ctx := context.Background()

	want := poolView{MarketID: "m1", Pool: 2000}
	require.NoError(t, m.Set(ctx, "market:m1", want, 0))
	v, err := m.Get(ctx, "market:m1")
	assert.NoError(t, err)
	assert.Equal(t, want, v)

	_, err = m.Get(ctx, "market:missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNewCacheRedis(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	opts := &RedisOptions{
		Addr:      s.Addr(),
		PoolSize:  5,
		OpTimeout: 100 * time.Millisecond,
	}
	c, err := NewCache[poolView](RedisBackend, opts)
	require.NoError(t, err)
	r, ok := c.(*RedisCache[poolView])
	require.True(t, ok, "expected *RedisCache[poolView]")
	defer r.Close()
	ctx := context.Background()

	want := poolView{MarketID: "m2", Pool: 1000, Resolved: true}
	require.NoError(t, r.Set(ctx, "market:m2", want, 0))
	v, err := r.Get(ctx, "market:m2")
	assert.NoError(t, err)
	assert.Equal(t, want, v)
}

func TestNewCacheErrors(t *testing.T) {
	_, err := NewCache[int]("something-else")
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = NewCache[int](RedisBackend)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = NewCache[int](RedisBackend, "not-options")
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = NewCache[int](MemoryBackend, time.Second)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestNewCacheMemoryWithOptions(t *testing.T) {
	c, err := NewCache[poolView](MemoryBackend, WithShards(8), WithDefaultTTL(30*time.Second))
	require.NoError(t, err)
	m, ok := c.(*MemoryCache[poolView])
	require.True(t, ok)
	defer m.Stop()

	assert.Len(t, m.buckets, 8)
	assert.Equal(t, 30*time.Second, m.DefaultTTL())
}
