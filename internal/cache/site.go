package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pagedrop/pagedrop/internal/model"
)

// Cache key prefixes and TTLs.
const (
	siteKeyPrefix     = "site:"
	negCacheKeySuffix = ":neg"

	// DefaultSiteTTL is the TTL for cached site data.
	DefaultSiteTTL = 5 * time.Minute

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// GetSite retrieves a site from cache by id.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetSite(ctx context.Context, siteID string) (*model.CachedSite, error) {
	key := siteKeyPrefix + siteID

	var cached model.CachedSite
	res := c.client.HGetAll(ctx, key)
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(res.Val()) == 0 {
		return nil, ErrCacheMiss
	}
	if err := res.Scan(&cached); err != nil {
		return nil, fmt.Errorf("decode cached site: %w", err)
	}

	return &cached, nil
}

// SetSite stores a site in cache and clears any negative entry.
func (c *Cache) SetSite(ctx context.Context, site *model.Site, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSiteTTL
	}
	key := siteKeyPrefix + site.ID

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, site.ToCachedSite())
	pipe.Expire(ctx, key, ttl)
	pipe.Del(ctx, key+negCacheKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache site: %w", err)
	}

	return nil
}

// DeleteSite removes a site and its negative entry from cache.
func (c *Cache) DeleteSite(ctx context.Context, siteID string) error {
	key := siteKeyPrefix + siteID

	if err := c.client.Del(ctx, key, key+negCacheKeySuffix).Err(); err != nil {
		return fmt.Errorf("failed to delete site from cache: %w", err)
	}

	return nil
}

// IsNegativelyCached checks if a site id is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, siteID string) (bool, error) {
	key := siteKeyPrefix + siteID + negCacheKeySuffix

	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks a site id as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, siteID string) error {
	key := siteKeyPrefix + siteID + negCacheKeySuffix

	if err := c.client.SetEx(ctx, key, "", NegativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}
