package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pagedrop/pagedrop/internal/analytics"
	"github.com/pagedrop/pagedrop/internal/cache"
)

// HitLimiter checks the per-IP hit budget.
type HitLimiter interface {
	CheckHitRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter HitLimiter
	Enabled bool
	RPS     int // Requests per second
	Burst   int
}

const throttledKey contextKey = "throttled"

// IsThrottled reports whether RateLimitIP marked the request as over budget.
func IsThrottled(ctx context.Context) bool {
	throttled, _ := ctx.Value(throttledKey).(bool)
	return throttled
}

// RateLimitIP returns middleware that applies a per-IP token bucket to hit
// requests. Over-limit requests are not rejected: the beacon contract
// requires the normal response, so the request is marked throttled and the
// handler skips recording. Limiter errors fail open.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || cfg.Limiter == nil || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ip := analytics.ClientIP(r)

			result, err := cfg.Limiter.CheckHitRateLimit(r.Context(), ip, cfg.RPS, cfg.Burst)
			if err != nil {
				cfg.Logger.Error("hit rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))

			if !result.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("type", "hit"),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int64("retry_after_seconds", int64(result.RetryAfter.Seconds())),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				ctx := context.WithValue(r.Context(), throttledKey, true)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
