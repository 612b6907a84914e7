package cache

import (
	"context"
	"time"
)

// BytesCache is the caching surface services depend on. The redis
// implementation lives in rediscache; tests use in-memory fakes.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
