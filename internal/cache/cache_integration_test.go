//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pagedrop/pagedrop/internal/model"
	"github.com/pagedrop/pagedrop/internal/testutil"
)

func newCacheTestEnv(t *testing.T) (context.Context, *Cache) {
	t.Helper()
	redisURL := testutil.RequireEnv(t, "TEST_REDIS_URL")

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("parse REDIS_URL: %v", err)
	}
	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	if err := testutil.FlushRedis(ctx, client); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return ctx, NewFromClient(client)
}

func TestIntegrationCache_SiteRoundTrip(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	site := testutil.NewTestSite(t)
	site.Analytics = &model.SiteAnalytics{Enabled: true, ExcludeAdmin: true}

	if _, err := c.GetSite(ctx, site.ID); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("GetSite() before set error = %v, want ErrCacheMiss", err)
	}
	if err := c.SetNegativeCache(ctx, site.ID); err != nil {
		t.Fatalf("SetNegativeCache: %v", err)
	}
	if err := c.SetSite(ctx, site, time.Minute); err != nil {
		t.Fatalf("SetSite: %v", err)
	}
	if neg, _ := c.IsNegativelyCached(ctx, site.ID); neg {
		t.Error("SetSite should clear the negative entry")
	}

	cached, err := c.GetSite(ctx, site.ID)
	if err != nil {
		t.Fatalf("GetSite: %v", err)
	}
	got := cached.ToSite(site.ID)
	if !got.Trackable() || !got.ExcludesAdmin() {
		t.Errorf("cached site = %+v", got)
	}

	if err := c.DeleteSite(ctx, site.ID); err != nil {
		t.Fatalf("DeleteSite: %v", err)
	}
	if _, err := c.GetSite(ctx, site.ID); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("GetSite() after delete error = %v, want ErrCacheMiss", err)
	}
}

func TestIntegrationCache_CountersCountSessionsOnce(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	for _, hit := range []struct {
		session string
		bot     bool
	}{
		{"s1", false},
		{"s1", false},
		{"s2", true},
	} {
		if err := c.IncrementSiteCounters(ctx, "site-a", hit.session, hit.bot, time.Minute); err != nil {
			t.Fatalf("IncrementSiteCounters: %v", err)
		}
	}

	keys, err := c.ScanCounterKeys(ctx)
	if err != nil || len(keys) != 1 || ExtractSiteIDFromCounterKey(keys[0]) != "site-a" {
		t.Fatalf("ScanCounterKeys() = %v, %v", keys, err)
	}

	got, err := c.GetAndResetSiteCounters(ctx, "site-a")
	if err != nil {
		t.Fatalf("GetAndResetSiteCounters: %v", err)
	}
	want := model.SiteCounters{Hits: 3, Sessions: 2, BotHits: 1}
	if got != want {
		t.Errorf("counters = %+v, want %+v", got, want)
	}

	if after, _ := c.PeekSiteCounters(ctx, "site-a"); !after.IsZero() {
		t.Errorf("counters after reset = %+v", after)
	}
	if err := c.RestoreSiteCounters(ctx, "site-a", got); err != nil {
		t.Fatalf("RestoreSiteCounters: %v", err)
	}
	if restored, _ := c.PeekSiteCounters(ctx, "site-a"); restored != want {
		t.Errorf("restored counters = %+v, want %+v", restored, want)
	}
}

func TestIntegrationCache_ActiveSessionCountedOnce(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	const window = 400 * time.Millisecond
	hit := func() {
		t.Helper()
		if err := c.IncrementSiteCounters(ctx, "site-a", "s1", false, window); err != nil {
			t.Fatalf("IncrementSiteCounters: %v", err)
		}
	}

	// Activity every 250ms keeps the session alive well past one window
	// measured from its first hit.
	for i := 0; i < 5; i++ {
		hit()
		time.Sleep(250 * time.Millisecond)
	}
	if got, _ := c.PeekSiteCounters(ctx, "site-a"); got.Sessions != 1 || got.Hits != 5 {
		t.Fatalf("active session counters = %+v, want 5 hits in 1 session", got)
	}

	// Idle longer than the window: the same id starts a new session.
	time.Sleep(window + 200*time.Millisecond)
	hit()
	if got, _ := c.PeekSiteCounters(ctx, "site-a"); got.Sessions != 2 {
		t.Errorf("sessions after idle gap = %d, want 2", got.Sessions)
	}
}

func TestIntegrationCache_HitRateLimit(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	allowed := 0
	for i := 0; i < 5; i++ {
		res, err := c.CheckHitRateLimit(ctx, "203.0.113.9", 1, 3)
		if err != nil {
			t.Fatalf("CheckHitRateLimit: %v", err)
		}
		if res.Allowed {
			allowed++
		} else if res.RetryAfter <= 0 {
			t.Errorf("denied result without RetryAfter: %+v", res)
		}
	}
	if allowed != 3 {
		t.Errorf("allowed %d of 5 with burst 3, want 3", allowed)
	}

	other, err := c.CheckHitRateLimit(ctx, "203.0.113.10", 1, 3)
	if err != nil || !other.Allowed {
		t.Errorf("separate address should have its own bucket: %+v, %v", other, err)
	}

	keys, err := c.Client().Keys(ctx, rateLimitHitPrefix+"*").Result()
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range keys {
		if len(k) != len(rateLimitHitPrefix)+16 {
			t.Errorf("rate limit key %q should carry a 16-char hash", k)
		}
	}
}
