package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// GuidanceCache stores advisory guidance keyed by a fingerprint of the role
// details, so re-requesting guidance for unchanged inputs skips the agent.
type GuidanceCache struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewGuidanceCache creates a guidance cache with the given entry TTL
func NewGuidanceCache(cache *RedisCache, ttl time.Duration) *GuidanceCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &GuidanceCache{cache: cache, ttl: ttl}
}

// GetGuidance returns the cached text and whether the key was present
func (g *GuidanceCache) GetGuidance(ctx context.Context, key string) (string, bool, error) {
	text, err := g.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return text, true, nil
}

// SetGuidance stores guidance text under the fingerprint key
func (g *GuidanceCache) SetGuidance(ctx context.Context, key, text string) error {
	return g.cache.Set(ctx, key, text, g.ttl)
}
