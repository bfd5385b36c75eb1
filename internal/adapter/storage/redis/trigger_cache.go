package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// TriggerCache implements ports.TriggerCache using Redis. It stores the
// response of a trigger request under the client's idempotency key, so a
// network-level retry of the same trigger returns the recorded response
// instead of dispatching a second delivery.
type TriggerCache struct {
	client *goredis.Client
	prefix string
}

// NewTriggerCache creates a new Redis-backed trigger cache.
func NewTriggerCache(client *goredis.Client) *TriggerCache {
	return &TriggerCache{
		client: client,
		prefix: "trigger:",
	}
}

// Get retrieves a cached trigger response by idempotency key.
// Returns nil, nil if the key does not exist.
func (c *TriggerCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis trigger cache get: %w", err)
	}
	return val, nil
}

// Set stores a trigger response with TTL.
func (c *TriggerCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.Set(ctx, c.prefix+key, value, ttl).Err()
	if err != nil {
		return fmt.Errorf("redis trigger cache set: %w", err)
	}
	return nil
}
