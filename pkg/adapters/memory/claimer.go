package memory

import (
	"context"
	"sync"
	"time"
)

// Claimer implements ports.Claimer for a single process.
type Claimer struct {
	mu     sync.Mutex
	claims map[string]time.Time // key -> expiry; zero means no expiry
	now    func() time.Time
}

// NewClaimer creates an empty claimer.
func NewClaimer() *Claimer {
	return &Claimer{
		claims: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Claim grants key if nobody holds it or the previous claim expired.
func (c *Claimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if exp, held := c.claims[key]; held && (exp.IsZero() || now.Before(exp)) {
		return false, nil
	}

	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	c.claims[key] = exp
	return true, nil
}

// Release drops the claim on key.
func (c *Claimer) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claims, key)
	return nil
}
