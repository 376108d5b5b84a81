package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "blacklist:"

// BlacklistCache is the fast revocation cache. Keys carry the token's
// remaining lifetime as TTL, so entries that outlive their usefulness expire
// on their own. The cache is purely additive: losing it only slows the
// revocation check down to the durable store.
type BlacklistCache struct {
	client *redis.Client
}

func NewBlacklistCache(client *redis.Client) *BlacklistCache {
	return &BlacklistCache{client: client}
}

func (c *BlacklistCache) MarkRevoked(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already past natural expiry; expiry alone rejects the token.
		return nil
	}
	return c.client.Set(ctx, revokedKeyPrefix+tokenHash, "revoked", ttl).Err()
}

func (c *BlacklistCache) MarkRevokedBatch(ctx context.Context, hashes map[string]time.Duration) error {
	pipe := c.client.Pipeline()
	for hash, ttl := range hashes {
		if ttl <= 0 {
			continue
		}
		pipe.Set(ctx, revokedKeyPrefix+hash, "revoked", ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// IsRevoked reports whether the hash is in the cache. A missing key is not
// authoritative; callers fall through to the durable store.
func (c *BlacklistCache) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	result, err := c.client.Get(ctx, revokedKeyPrefix+tokenHash).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return result == "revoked", nil
}
