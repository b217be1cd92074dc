package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is the cache contract shared by every backend. Values are stored as JSON.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	// DeleteByPattern removes keys matching a glob such as "result:*".
	DeleteByPattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	// TryLock sets key only if it is absent and reports whether it did.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}

// Backend is a Service that can also move already encoded values, so layers
// can copy entries without a decode/encode round trip.
type Backend interface {
	Service
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, data []byte, expiration time.Duration) error
}

var (
	_ Backend = (*MemoryCache)(nil)
	_ Backend = (*RedisCache)(nil)
	_ Service = (*LayeredCache)(nil)
)

// GenerateKey joins a namespace and an id.
func GenerateKey(prefix, id string) string {
	return prefix + ":" + id
}

// BuildPattern matches every key generated under prefix.
func BuildPattern(prefix string) string {
	return prefix + ":*"
}

// HashKey is a short stable digest for payloads that carry no id.
func HashKey(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

func encode(key string, value interface{}) ([]byte, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cache encode %s: %w", key, err)
	}
	return b, nil
}

func decode(key string, data []byte, dest interface{}) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache decode %s: %w", key, err)
	}
	return nil
}
