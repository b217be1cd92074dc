package cache

import (
	"container/list"
	"context"
	"fmt"
	"path"
	"sync"
	"time"
)

// MemoryOption configures MemoryCache.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	maxSize int
	sweep   time.Duration
}

// WithMemoryMaxSize bounds the number of entries; 0 means unbounded.
func WithMemoryMaxSize(n int) MemoryOption {
	return func(c *memoryConfig) { c.maxSize = n }
}

// WithMemoryCleanup sets how often expired entries are swept; 0 disables the sweeper.
func WithMemoryCleanup(every time.Duration) MemoryOption {
	return func(c *memoryConfig) { c.sweep = every }
}

type entry struct {
	key      string
	data     []byte
	deadline time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// MemoryCache is an in-process LRU. The list front is the most recently used entry.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List
	maxSize int
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := memoryConfig{maxSize: 1000, sweep: 5 * time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}
	mc := &MemoryCache{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: cfg.maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if cfg.sweep > 0 {
		go mc.sweeper(cfg.sweep)
	}
	return mc
}

func (mc *MemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(key, value)
	if err != nil {
		return err
	}
	return mc.SetBytes(ctx, key, data, expiration)
}

func (mc *MemoryCache) SetBytes(_ context.Context, key string, data []byte, expiration time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.store(key, data, expiration)
	return nil
}

func (mc *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := mc.GetBytes(ctx, key)
	if err != nil {
		return err
	}
	return decode(key, data, dest)
}

func (mc *MemoryCache) GetBytes(_ context.Context, key string) ([]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	el := mc.live(key)
	if el == nil {
		return nil, ErrCacheMiss
	}
	mc.order.MoveToFront(el)
	return el.Value.(*entry).data, nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if el, ok := mc.items[k]; ok {
			mc.remove(el)
		}
	}
	return nil
}

func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("cache pattern %q: %w", pattern, err)
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for k, el := range mc.items {
		if hit, _ := path.Match(pattern, k); hit {
			mc.remove(el)
		}
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if mc.live(k) != nil {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.live(key) != nil {
		return false, nil
	}
	mc.store(key, []byte(`"locked"`), ttl)
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Len counts entries, including expired ones not yet swept.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.items)
}

func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() { close(mc.done) })
	return nil
}

// store inserts or replaces key and evicts from the back when over capacity. Caller holds mu.
func (mc *MemoryCache) store(key string, data []byte, ttl time.Duration) {
	e := &entry{key: key, data: data}
	if ttl > 0 {
		e.deadline = mc.now().Add(ttl)
	}
	if el, ok := mc.items[key]; ok {
		el.Value = e
		mc.order.MoveToFront(el)
		return
	}
	mc.items[key] = mc.order.PushFront(e)
	for mc.maxSize > 0 && mc.order.Len() > mc.maxSize {
		mc.remove(mc.order.Back())
	}
}

// live returns the element for key, dropping it if it has expired. Caller holds mu.
func (mc *MemoryCache) live(key string) *list.Element {
	el, ok := mc.items[key]
	if !ok {
		return nil
	}
	if el.Value.(*entry).expired(mc.now()) {
		mc.remove(el)
		return nil
	}
	return el
}

func (mc *MemoryCache) remove(el *list.Element) {
	mc.order.Remove(el)
	delete(mc.items, el.Value.(*entry).key)
}

func (mc *MemoryCache) sweeper(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-mc.done:
			return
		case <-t.C:
			mc.mu.Lock()
			now := mc.now()
			for _, el := range mc.items {
				if el.Value.(*entry).expired(now) {
					mc.remove(el)
				}
			}
			mc.mu.Unlock()
		}
	}
}
