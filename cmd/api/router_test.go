package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/pagedrop/pagedrop/internal/analytics"
	"github.com/pagedrop/pagedrop/internal/cache"
	"github.com/pagedrop/pagedrop/internal/config"
	"github.com/pagedrop/pagedrop/internal/handler"
	"github.com/pagedrop/pagedrop/internal/metrics"
	"github.com/pagedrop/pagedrop/internal/model"
	"github.com/pagedrop/pagedrop/internal/service"
)

type staticSites struct{}

func (staticSites) ResolveSite(_ context.Context, id string) (*model.Site, error) {
	return &model.Site{ID: id, Status: model.SiteStatusActive}, nil
}

type countingSink struct {
	mu      sync.Mutex
	records int
}

func (s *countingSink) Record(*model.AnalyticsRecord) {
	s.mu.Lock()
	s.records++
	s.mu.Unlock()
}

func (s *countingSink) IncrementCounters(string, string, bool) {}

type missingStats struct{}

func (missingStats) GetSiteStats(context.Context, string, int) (*model.SiteStats, error) {
	return nil, service.ErrSiteNotFound
}

type allowAll struct{}

func (allowAll) CheckHitRateLimit(context.Context, string, int, int) (*cache.RateLimitResult, error) {
	return &cache.RateLimitResult{Allowed: true, Remaining: 1}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *countingSink) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := metrics.NewInMemory()
	sink := &countingSink{}
	cfg := &config.Config{
		AppEnv:              "production",
		RateLimitHitEnabled: true,
		RateLimitHitRPS:     20,
		RateLimitHitBurst:   40,
		MaxRequestBodySize:  1024,
	}
	builder := analytics.NewRecordBuilder(analytics.NewIPHasher("test-salt"), 0)
	h := routeHandlers{
		root:    handler.New(),
		health:  handler.NewHealthHandler(nil, nil),
		metrics: handler.NewMetricsHandler(recorder),
		hit:     handler.NewHitHandler(staticSites{}, sink, builder, logger, recorder),
		stats:   handler.NewStatsHandler(missingStats{}, logger),
	}
	return setupRouter(h, allowAll{}, cfg, logger), sink
}

func TestRouter(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)
	tests := []struct {
		name        string
		method      string
		path        string
		wantStatus  int
		wantType    string
		wantCORP    string
		wantAllowed string
	}{
		{"pixel", http.MethodGet, "/hit/site_1", http.StatusOK, "image/gif", "cross-origin", ""},
		{"versioned pixel", http.MethodGet, "/api/v1/analytics/hit/site_1", http.StatusOK, "image/gif", "cross-origin", ""},
		{"missing site id", http.MethodGet, "/api/v1/analytics/hit/", http.StatusBadRequest, "application/json", "cross-origin", ""},
		{"hit preflight", http.MethodOptions, "/hit/site_1", http.StatusNoContent, "", "cross-origin", ""},
		{"hit wrong method", http.MethodDelete, "/hit/site_1", http.StatusMethodNotAllowed, "application/json", "cross-origin", "GET, POST"},
		{"stats unknown site", http.MethodGet, "/api/v1/sites/nope/stats", http.StatusNotFound, "application/json", "same-origin", ""},
		{"liveness", http.MethodGet, "/healthz", http.StatusOK, "application/json", "same-origin", ""},
		{"unknown route", http.MethodGet, "/links", http.StatusNotFound, "application/json", "same-origin", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantType != "" && rec.Header().Get("Content-Type") != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", rec.Header().Get("Content-Type"), tt.wantType)
			}
			if got := rec.Header().Get("Cross-Origin-Resource-Policy"); got != tt.wantCORP {
				t.Errorf("Cross-Origin-Resource-Policy = %q, want %q", got, tt.wantCORP)
			}
			if tt.wantAllowed != "" && rec.Header().Get("Allow") != tt.wantAllowed {
				t.Errorf("Allow = %q, want %q", rec.Header().Get("Allow"), tt.wantAllowed)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID")
			}
		})
	}
}

func TestRouter_HitIsRecorded(t *testing.T) {
	t.Parallel()

	router, sink := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/hit/site_1?url=https://example.com/a", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/120.0")
	router.ServeHTTP(httptest.NewRecorder(), req)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.records != 1 {
		t.Errorf("records = %d, want 1", sink.records)
	}
}
