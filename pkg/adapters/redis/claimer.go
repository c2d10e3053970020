package redis

import (
	"context"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// Claimer implements ports.Claimer with SET NX, so only one replica ever
// finalizes a given session.
type Claimer struct {
	client backend.UniversalClient
	prefix string
}

// NewClaimer creates a Claimer writing keys under prefix.
func NewClaimer(client backend.UniversalClient, prefix string) *Claimer {
	return &Claimer{client: client, prefix: prefix}
}

func (c *Claimer) key(k string) string {
	return c.prefix + "claim:" + k
}

// Claim implements ports.Claimer. A zero ttl never expires.
func (c *Claimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.key(key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis error claiming %s: %w", key, err)
	}
	return ok, nil
}

// Release implements ports.Claimer.
func (c *Claimer) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis error releasing %s: %w", key, err)
	}
	return nil
}
