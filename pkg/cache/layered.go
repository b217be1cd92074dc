package cache

import (
	"context"
	"errors"
	"time"
)

// LayeredOption configures LayeredCache.
type LayeredOption func(*LayeredCache)

// WithLayeredMemorySize bounds the in-process layer.
func WithLayeredMemorySize(n int) LayeredOption {
	return func(lc *LayeredCache) {
		if n > 0 {
			lc.localSize = n
		}
	}
}

// WithLayeredMemoryTTL caps how long the in-process layer may serve an entry without asking the remote.
func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(lc *LayeredCache) {
		if ttl > 0 {
			lc.localTTL = ttl
		}
	}
}

// LayeredCache reads through a local LRU and writes through to a shared
// backend. Locks and existence checks always go to the shared backend.
type LayeredCache struct {
	local     *MemoryCache
	remote    Backend
	localSize int
	localTTL  time.Duration
}

func NewLayeredCache(remote Backend, opts ...LayeredOption) *LayeredCache {
	lc := &LayeredCache{remote: remote, localSize: 1000, localTTL: time.Minute}
	for _, opt := range opts {
		opt(lc)
	}
	lc.local = NewMemoryCache(WithMemoryMaxSize(lc.localSize), WithMemoryCleanup(lc.localTTL))
	return lc
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(key, value)
	if err != nil {
		return err
	}
	if err := lc.remote.SetBytes(ctx, key, data, expiration); err != nil {
		return err
	}
	return lc.local.SetBytes(ctx, key, data, lc.capTTL(expiration))
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := lc.local.GetBytes(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		if data, err = lc.remote.GetBytes(ctx, key); err != nil {
			return err
		}
		_ = lc.local.SetBytes(ctx, key, data, lc.localTTL)
	}
	return decode(key, data, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.local.Delete(ctx, keys...)
	return lc.remote.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	if err := lc.local.DeleteByPattern(ctx, pattern); err != nil {
		return err
	}
	return lc.remote.DeleteByPattern(ctx, pattern)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.remote.Exists(ctx, keys...)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.remote.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.remote.Unlock(ctx, key)
}

func (lc *LayeredCache) Close() error {
	return errors.Join(lc.local.Close(), lc.remote.Close())
}

func (lc *LayeredCache) capTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > lc.localTTL {
		return lc.localTTL
	}
	return ttl
}
