package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOption configures RedisCache.
type RedisOption func(*redis.Options, *string)

func WithRedisHost(host string) RedisOption {
	return func(o *redis.Options, _ *string) {
		_, port, _ := net.SplitHostPort(o.Addr)
		o.Addr = net.JoinHostPort(host, port)
	}
}

func WithRedisPort(port int) RedisOption {
	return func(o *redis.Options, _ *string) {
		host, _, _ := net.SplitHostPort(o.Addr)
		o.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
}

func WithRedisPassword(password string) RedisOption {
	return func(o *redis.Options, _ *string) { o.Password = password }
}

func WithRedisDB(db int) RedisOption {
	return func(o *redis.Options, _ *string) { o.DB = db }
}

// WithRedisPool sizes the connection pool.
func WithRedisPool(size, minIdle int, wait time.Duration) RedisOption {
	return func(o *redis.Options, _ *string) {
		if size > 0 {
			o.PoolSize = size
		}
		o.MinIdleConns = minIdle
		o.PoolTimeout = wait
	}
}

// WithRedisPrefix namespaces every key so several deployments can share a database.
func WithRedisPrefix(prefix string) RedisOption {
	return func(_ *redis.Options, p *string) { *p = prefix }
}

// RedisCache is the shared backend used when several replicas run side by side.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects and pings; it fails fast if the server is unreachable.
func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	ro := &redis.Options{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  30 * time.Second,
	}
	prefix := "fincoord"
	for _, opt := range opts {
		opt(ro, &prefix)
	}

	client := redis.NewClient(ro)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", ro.Addr, err)
	}
	return &RedisCache{client: client, prefix: prefix}, nil
}

func (r *RedisCache) Client() *redis.Client { return r.client }

func (r *RedisCache) Close() error { return r.client.Close() }

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(key, value)
	if err != nil {
		return err
	}
	return r.SetBytes(ctx, key, data, expiration)
}

func (r *RedisCache) SetBytes(ctx context.Context, key string, data []byte, expiration time.Duration) error {
	return r.client.Set(ctx, r.key(key), data, expiration).Err()
}

func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.GetBytes(ctx, key)
	if err != nil {
		return err
	}
	return decode(key, data, dest)
}

func (r *RedisCache) GetBytes(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Unlink(ctx, r.keys(keys)...).Err()
}

// DeleteByPattern scans the keyspace and unlinks matches in pipelined batches.
func (r *RedisCache) DeleteByPattern(ctx context.Context, pattern string) error {
	const batch = 500
	it := r.client.Scan(ctx, 0, r.key(pattern), batch).Iterator()
	pending := make([]string, 0, batch)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		err := r.client.Unlink(ctx, pending...).Err()
		pending = pending[:0]
		return err
	}
	for it.Next(ctx) {
		pending = append(pending, it.Val())
		if len(pending) == batch {
			if err := flush(); err != nil {
				return fmt.Errorf("redis unlink: %w", err)
			}
		}
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	return flush()
}

func (r *RedisCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	n, err := r.client.Exists(ctx, r.keys(keys)...).Result()
	return n > 0, err
}

func (r *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.key(key), "locked", ttl).Result()
}

func (r *RedisCache) Unlock(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisCache) key(k string) string {
	return GenerateKey(r.prefix, k)
}

func (r *RedisCache) keys(ks []string) []string {
	out := make([]string, 0, len(ks))
	for _, k := range ks {
		out = append(out, r.key(k))
	}
	return out
}
