package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/craftfolio/craftfolio/internal/registrar"
	"github.com/redis/go-redis/v9"
)

// DefaultPriceListTTL bounds how stale a cached registrar price list may
// be before quotes trigger a refresh.
const DefaultPriceListTTL = 24 * time.Hour

// PriceListCache stores the registrar price list between quotes. A stale
// read during refresh is acceptable; the old prices stay valid until
// overwritten.
type PriceListCache interface {
	Get(ctx context.Context) (registrar.PriceList, bool, error)
	Set(ctx context.Context, list registrar.PriceList) error
}

// MemoryCache is a process-local PriceListCache with passive TTL expiry.
// The clock is injectable so tests can advance time.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.RWMutex
	list      registrar.PriceList
	fetchedAt time.Time
}

// NewMemoryCache creates an in-memory cache. A zero ttl falls back to
// DefaultPriceListTTL; a nil now falls back to time.Now.
func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultPriceListTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{ttl: ttl, now: now}
}

func (c *MemoryCache) Get(ctx context.Context) (registrar.PriceList, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.list == nil || c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false, nil
	}
	return c.list, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, list registrar.PriceList) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = list
	c.fetchedAt = c.now()
	return nil
}

// RedisCache shares one price list across service instances so each
// instance does not pay its own registrar fetch after deploys.
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultPriceListTTL
	}
	return &RedisCache{client: client, key: "pricing:registrar_price_list", ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context) (registrar.PriceList, bool, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var list registrar.PriceList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false, err
	}
	return list, true, nil
}

func (c *RedisCache) Set(ctx context.Context, list registrar.PriceList) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, raw, c.ttl).Err()
}
