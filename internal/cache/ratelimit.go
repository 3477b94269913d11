package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitHitPrefix prefixes per-address hit buckets. Keys carry a
// truncated hash, never the address.
const rateLimitHitPrefix = "ratelimit:hit:"

// RateLimitResult is the outcome of one bucket check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// hitBucketScript is a token bucket refilled with millisecond precision.
// State is a hash of fractional tokens and the last refill time in ms; the
// key expires once a full bucket would have refilled.
var hitBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now_ms
if now_ms > ts then
	tokens = math.min(burst, tokens + (now_ms - ts) * rate / 1000)
end

local allowed = 0
local retry_ms = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	retry_ms = math.ceil((1 - tokens) * 1000 / rate)
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', now_ms)
redis.call('PEXPIRE', key, math.ceil(burst * 1000 / rate) + 1000)

return {allowed, retry_ms, math.floor(tokens)}
`)

// CheckHitRateLimit takes one token from the bucket of ip. A non-positive
// rate disables limiting. Errors are returned so the caller can fail open.
func (c *Cache) CheckHitRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 || burst <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst)}, nil
	}

	res, err := hitBucketScript.Run(ctx, c.client,
		[]string{rateLimitHitPrefix + hashIP(ip)},
		ratePerSecond, burst, time.Now().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("hit rate limit script: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("hit rate limit script: unexpected reply %v", res)
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		Remaining:  res[2],
	}, nil
}

// hashIP returns 16 hex chars of SHA-256 over ip. Enough to separate
// buckets without keeping the address in Redis.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
