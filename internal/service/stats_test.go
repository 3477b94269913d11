package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pagedrop/pagedrop/internal/model"
	"github.com/pagedrop/pagedrop/internal/repository"
)

type fakeRecordStats struct {
	from, to time.Time
	totals   repository.RecordTotals
	paths    []model.PathCount
}

func (f *fakeRecordStats) GetRecordTotals(_ context.Context, _ string, from, to time.Time) (*repository.RecordTotals, error) {
	f.from, f.to = from, to
	totals := f.totals
	return &totals, nil
}

func (f *fakeRecordStats) GetTopPaths(_ context.Context, _ string, _, _ time.Time, _ int) ([]model.PathCount, error) {
	return f.paths, nil
}

func TestGetSiteStats(t *testing.T) {
	t.Parallel()

	store := &fakeSiteStore{sites: map[string]*model.Site{
		"site-1": {ID: "site-1", Status: model.SiteStatusActive, HitCount: 100, SessionCount: 40},
	}}
	records := &fakeRecordStats{
		totals: repository.RecordTotals{Pageviews: 12, UniqueVisitors: 5, Sessions: 6, BotHits: 2},
		paths:  []model.PathCount{{Path: "/", Views: 9}},
	}
	pending := newFakeSiteCache()
	pending.counters["site-1"] = model.SiteCounters{Hits: 3}

	svc := NewStatsService(store, records, pending, testLogger())
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC) }

	stats, err := svc.GetSiteStats(context.Background(), "site-1", 0)
	if err != nil {
		t.Fatalf("GetSiteStats() error = %v", err)
	}

	if stats.Period.From != "2026-03-04" || stats.Period.To != "2026-03-10" {
		t.Errorf("period = %+v, want 2026-03-04..2026-03-10", stats.Period)
	}
	if !records.to.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("query upper bound = %v", records.to)
	}
	if stats.HitCount != 100 || stats.Pending.Hits != 3 || stats.Pageviews != 12 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if len(stats.TopPaths) != 1 {
		t.Errorf("TopPaths = %v", stats.TopPaths)
	}
}

func TestGetSiteStats_Errors(t *testing.T) {
	t.Parallel()

	store := &fakeSiteStore{sites: map[string]*model.Site{}}
	svc := NewStatsService(store, &fakeRecordStats{}, nil, testLogger())

	tests := []struct {
		name    string
		siteID  string
		days    int
		wantErr error
	}{
		{"unknown site", "ghost", 7, ErrSiteNotFound},
		{"negative days", "ghost", -1, ErrInvalidPeriod},
		{"too many days", "ghost", 91, ErrInvalidPeriod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetSiteStats(context.Background(), tt.siteID, tt.days)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GetSiteStats() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
