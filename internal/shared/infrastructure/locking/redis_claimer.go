package locking

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claimer reserves a key for exclusive processing across instances.
type Claimer interface {
	// Claim attempts to reserve key for ttl. It returns false when
	// another holder already owns the claim.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops the claim so a retry can take it.
	Release(ctx context.Context, key string) error
}

// RedisClaimer implements Claimer with SET NX. The TTL bounds how long a
// crashed holder blocks retries.
type RedisClaimer struct {
	client *redis.Client
	prefix string
}

// NewRedisClaimer creates a claimer namespaced under prefix.
func NewRedisClaimer(client *redis.Client, prefix string) *RedisClaimer {
	return &RedisClaimer{client: client, prefix: prefix}
}

func (c *RedisClaimer) key(key string) string {
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

// Claim reserves key for ttl.
func (c *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.key(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// Release drops the claim.
func (c *RedisClaimer) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// NoopClaimer satisfies Claimer for single-instance deployments and
// tests; every claim succeeds.
type NoopClaimer struct{}

func (NoopClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (NoopClaimer) Release(ctx context.Context, key string) error { return nil }
