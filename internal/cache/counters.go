package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pagedrop/pagedrop/internal/model"
)

const (
	countersKeyPrefix = "site_counters:"
	sessionKeyPrefix  = "session:"

	fieldHits     = "hits"
	fieldSessions = "sessions"
	fieldBotHits  = "bot_hits"

	scanBatchSize = 100
)

// CountersKey returns the Redis hash key holding a site's pending counters.
func CountersKey(siteID string) string {
	return countersKeyPrefix + siteID
}

func sessionKey(siteID, sessionID string) string {
	return sessionKeyPrefix + siteID + ":" + sessionID
}

// IncrementSiteCounters bumps the hit counters for a site.
// The sessions counter only moves the first time a session id is seen. The
// session marker expires window after the latest hit, not the first, so a
// session stays counted once for as long as it keeps being active.
func (c *Cache) IncrementSiteCounters(ctx context.Context, siteID, sessionID string, bot bool, window time.Duration) error {
	newSession := false
	if sessionID != "" {
		marker := sessionKey(siteID, sessionID)
		var created *redis.BoolCmd
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			created = pipe.SetNX(ctx, marker, 1, window)
			pipe.PExpire(ctx, marker, window)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to mark session: %w", err)
		}
		newSession = created.Val()
	}

	key := CountersKey(siteID)
	pipe := c.client.Pipeline()
	pipe.HIncrBy(ctx, key, fieldHits, 1)
	if newSession {
		pipe.HIncrBy(ctx, key, fieldSessions, 1)
	}
	if bot {
		pipe.HIncrBy(ctx, key, fieldBotHits, 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment site counters: %w", err)
	}

	return nil
}

// PeekSiteCounters reads pending counters without resetting them.
func (c *Cache) PeekSiteCounters(ctx context.Context, siteID string) (model.SiteCounters, error) {
	values, err := c.client.HGetAll(ctx, CountersKey(siteID)).Result()
	if err != nil {
		return model.SiteCounters{}, fmt.Errorf("failed to read site counters: %w", err)
	}
	return parseCounters(values)
}

// GetAndResetSiteCounters atomically reads and deletes the counters hash.
// Increments landing after the MULTI start a fresh hash.
func (c *Cache) GetAndResetSiteCounters(ctx context.Context, siteID string) (model.SiteCounters, error) {
	key := CountersKey(siteID)

	var get *redis.MapStringStringCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGetAll(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.SiteCounters{}, nil
		}
		return model.SiteCounters{}, fmt.Errorf("failed to get and reset site counters: %w", err)
	}

	return parseCounters(get.Val())
}

// RestoreSiteCounters adds deltas back after a failed flush.
func (c *Cache) RestoreSiteCounters(ctx context.Context, siteID string, counters model.SiteCounters) error {
	if counters.IsZero() {
		return nil
	}
	key := CountersKey(siteID)

	pipe := c.client.Pipeline()
	pipe.HIncrBy(ctx, key, fieldHits, counters.Hits)
	pipe.HIncrBy(ctx, key, fieldSessions, counters.Sessions)
	pipe.HIncrBy(ctx, key, fieldBotHits, counters.BotHits)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to restore site counters: %w", err)
	}
	return nil
}

// ScanCounterKeys returns all pending counter keys.
// Used by the flusher to find sites with unflushed deltas.
func (c *Cache) ScanCounterKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		var batch []string
		var err error

		batch, cursor, err = c.client.Scan(ctx, cursor, countersKeyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan counter keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// ExtractSiteIDFromCounterKey extracts the site id from a counters key.
// Keys without the counters prefix yield "".
func ExtractSiteIDFromCounterKey(key string) string {
	siteID, ok := strings.CutPrefix(key, countersKeyPrefix)
	if !ok {
		return ""
	}
	return siteID
}

func parseCounters(values map[string]string) (model.SiteCounters, error) {
	var counters model.SiteCounters
	for field, raw := range values {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return model.SiteCounters{}, fmt.Errorf("failed to parse counter %s: %w", field, err)
		}
		switch field {
		case fieldHits:
			counters.Hits = n
		case fieldSessions:
			counters.Sessions = n
		case fieldBotHits:
			counters.BotHits = n
		}
	}
	return counters, nil
}
