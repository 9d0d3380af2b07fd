// Package cache provides the byte caches shared by concurrent pipeline runs:
// a Redis-backed primary tier and a bounded in-process fallback.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// ErrFull is returned by MemoryStore.Set when a new key cannot be admitted.
var ErrFull = errors.New("cache: full")

// Store is a TTL key-value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
