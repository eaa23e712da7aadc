package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claimer grants exclusive processing of a key for a TTL window.
type Claimer interface {
	// Claim reports true when the caller owns key; false means the key was
	// processed or is being processed recently.
	Claim(ctx context.Context, key string) (bool, error)
	// Release drops a claim so a failed attempt can be replayed at once.
	Release(ctx context.Context, key string) error
}

// MemoryClaimer claims keys within the current process only.
type MemoryClaimer struct {
	cache *Cache[struct{}]
}

func NewMemoryClaimer(ttl time.Duration) *MemoryClaimer {
	return &MemoryClaimer{cache: NewCache[struct{}](ttl)}
}

func NewMemoryClaimerWithCache(cache *Cache[struct{}]) *MemoryClaimer {
	return &MemoryClaimer{cache: cache}
}

func (m *MemoryClaimer) Claim(_ context.Context, key string) (bool, error) {
	return m.cache.SetIfAbsent(key, struct{}{}), nil
}

func (m *MemoryClaimer) Release(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// RedisClaimer claims keys across worker processes with SET NX EX.
type RedisClaimer struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisClaimer(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisClaimer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisClaimer{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisClaimer) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *RedisClaimer) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(key), "1", r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim %s: %w", key, err)
	}
	return ok, nil
}

func (r *RedisClaimer) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	return nil
}
