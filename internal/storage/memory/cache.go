package memory

import (
	"context"
	"sync"
	"time"
)

// BlacklistCache is an in-memory stand-in for the Redis revocation cache.
type BlacklistCache struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func NewBlacklistCache() *BlacklistCache {
	return &BlacklistCache{entries: make(map[string]time.Time)}
}

func (c *BlacklistCache) MarkRevoked(_ context.Context, tokenHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[tokenHash] = time.Now().Add(ttl)
	return nil
}

func (c *BlacklistCache) MarkRevokedBatch(ctx context.Context, hashes map[string]time.Duration) error {
	for hash, ttl := range hashes {
		if err := c.MarkRevoked(ctx, hash, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (c *BlacklistCache) IsRevoked(_ context.Context, tokenHash string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	expiry, ok := c.entries[tokenHash]
	if !ok {
		return false, nil
	}
	return time.Now().Before(expiry), nil
}
