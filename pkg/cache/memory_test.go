package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

func newTestCache(t *testing.T, opts ...MemoryOption) *MemoryCache {
	t.Helper()
	mc := NewMemoryCache(append([]MemoryOption{WithMemoryCleanup(0)}, opts...)...)
	t.Cleanup(func() { _ = mc.Close() })
	return mc
}

func TestMemoryCacheRoundTripsJSON(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t)

	require.NoError(t, mc.Set(ctx, "result:1", sample{ID: "1", Score: 0.75}, time.Minute))

	var got sample
	require.NoError(t, mc.Get(ctx, "result:1", &got))
	assert.Equal(t, sample{ID: "1", Score: 0.75}, got)

	assert.ErrorIs(t, mc.Get(ctx, "result:2", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", "v", time.Second))
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, err = mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t)
	for _, k := range []string{"result:a", "result:b", "request:a"} {
		require.NoError(t, mc.Set(ctx, k, 1, 0))
	}

	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("result")))

	ok, _ := mc.Exists(ctx, "result:a", "result:b")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "request:a")
	assert.True(t, ok)
}

func TestMemoryCacheTryLock(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t)

	ok, err := mc.TryLock(ctx, "request:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "request:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "request:1"))
	ok, _ = mc.TryLock(ctx, "request:1", time.Minute)
	assert.True(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t, WithMemoryMaxSize(2))
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { now = now.Add(time.Millisecond); return now }

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestHashKeyIsStable(t *testing.T) {
	assert.Equal(t, HashKey([]byte("x")), HashKey([]byte("x")))
	assert.NotEqual(t, HashKey([]byte("x")), HashKey([]byte("y")))
	assert.Len(t, HashKey([]byte("x")), 16)
}
