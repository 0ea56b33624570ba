package posture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"custodia/internal/platform/redis"
	id "custodia/pkg/domain"
)

// Cache holds computed postures for their TTL. Implementations must treat a
// miss and an expired entry identically; Invalidate removes a tenant's entry
// immediately, used after state changes that would make a cached posture
// misleading.
type Cache interface {
	Get(ctx context.Context, tenantID id.TenantID, timeframe string) (*Posture, bool, error)
	Set(ctx context.Context, posture *Posture) error
	Invalidate(ctx context.Context, tenantID id.TenantID) error
}

// MemoryCache is the single-process cache.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	posture   *Posture
	expiresAt time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func cacheKey(tenantID id.TenantID, timeframe string) string {
	return fmt.Sprintf("posture:%s:%s", tenantID, timeframe)
}

func (c *MemoryCache) Get(_ context.Context, tenantID id.TenantID, timeframe string) (*Posture, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey(tenantID, timeframe)]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.posture, true, nil
}

func (c *MemoryCache) Set(_ context.Context, posture *Posture) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(posture.TenantID, posture.Timeframe)] = memoryEntry{
		posture:   posture,
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, tenantID id.TenantID) error {
	prefix := fmt.Sprintf("posture:%s:", tenantID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
	return nil
}

// RedisCache shares postures across instances. Entries expire server-side
// via TTL; Invalidate deletes the tenant's keys eagerly.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, tenantID id.TenantID, timeframe string) (*Posture, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(tenantID, timeframe)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("posture cache get: %w", err)
	}
	var posture Posture
	if err := json.Unmarshal(raw, &posture); err != nil {
		return nil, false, fmt.Errorf("posture cache decode: %w", err)
	}
	return &posture, true, nil
}

func (c *RedisCache) Set(ctx context.Context, posture *Posture) error {
	raw, err := json.Marshal(posture)
	if err != nil {
		return fmt.Errorf("posture cache encode: %w", err)
	}
	key := cacheKey(posture.TenantID, posture.Timeframe)
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("posture cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, tenantID id.TenantID) error {
	pattern := fmt.Sprintf("posture:%s:*", tenantID)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("posture cache scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("posture cache invalidate: %w", err)
	}
	return nil
}
