package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevokedKeyPrefix is the prefix for revoked token digest keys.
const RevokedKeyPrefix = "session:revoked:"

// minMarkTTL keeps a marker alive briefly even for sessions that are already past expiry.
const minMarkTTL = time.Second

// kv is the subset of the go-redis client used by RevocationCache.
type kv interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RevocationCache records digests of revoked tokens so validation can reject them without a
// store round trip. It only ever adds markers; absence means "ask the store".
type RevocationCache struct {
	client kv
}

// NewRevocationCache returns a cache over client. A nil client yields a nil cache.
func NewRevocationCache(client redis.Cmdable) *RevocationCache {
	if client == nil {
		return nil
	}
	return &RevocationCache{client: client}
}

// MarkRevoked stores a marker for tokenHash that lives for ttl (the session's remaining lifetime).
func (c *RevocationCache) MarkRevoked(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	if tokenHash == "" {
		return errors.New("cache: empty token hash")
	}
	if ttl < minMarkTTL {
		ttl = minMarkTTL
	}
	return c.client.Set(ctx, RevokedKeyPrefix+tokenHash, "1", ttl).Err()
}

// IsRevoked reports whether tokenHash has a revocation marker.
func (c *RevocationCache) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	if c == nil || tokenHash == "" {
		return false, nil
	}
	n, err := c.client.Exists(ctx, RevokedKeyPrefix+tokenHash).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
