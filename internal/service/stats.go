package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagedrop/pagedrop/internal/model"
	"github.com/pagedrop/pagedrop/internal/repository"
)

// Stats period bounds in days.
const (
	DefaultStatsDays = 7
	MaxStatsDays     = 90
)

// ErrInvalidPeriod is returned for a days value outside [1, MaxStatsDays].
var ErrInvalidPeriod = errors.New("days must be between 1 and 90")

// RecordStatsStore aggregates persisted analytics records.
type RecordStatsStore interface {
	GetRecordTotals(ctx context.Context, siteID string, from, to time.Time) (*repository.RecordTotals, error)
	GetTopPaths(ctx context.Context, siteID string, from, to time.Time, limit int) ([]model.PathCount, error)
}

// PendingCounters reads counters not yet flushed to the database.
type PendingCounters interface {
	PeekSiteCounters(ctx context.Context, siteID string) (model.SiteCounters, error)
}

// StatsService builds the analytics summary for a site.
type StatsService struct {
	sites   SiteStore
	records RecordStatsStore
	pending PendingCounters
	logger  *slog.Logger
	now     func() time.Time
}

// NewStatsService creates a new StatsService.
func NewStatsService(sites SiteStore, records RecordStatsStore, pending PendingCounters, logger *slog.Logger) *StatsService {
	return &StatsService{
		sites:   sites,
		records: records,
		pending: pending,
		logger:  logger.With("component", "service.stats"),
		now:     time.Now,
	}
}

// GetSiteStats returns persisted counters, pending Redis deltas and record
// aggregates over the last days days (UTC, today inclusive).
func (s *StatsService) GetSiteStats(ctx context.Context, siteID string, days int) (*model.SiteStats, error) {
	if days == 0 {
		days = DefaultStatsDays
	}
	if days < 1 || days > MaxStatsDays {
		return nil, ErrInvalidPeriod
	}

	site, err := s.sites.GetSiteByID(ctx, siteID)
	if err != nil {
		if errors.Is(err, repository.ErrSiteNotFound) {
			return nil, ErrSiteNotFound
		}
		return nil, fmt.Errorf("get site: %w", err)
	}

	now := s.now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -days)

	totals, err := s.records.GetRecordTotals(ctx, siteID, from, to)
	if err != nil {
		return nil, fmt.Errorf("get record totals: %w", err)
	}

	paths, err := s.records.GetTopPaths(ctx, siteID, from, to, repository.DefaultTopPathsLimit)
	if err != nil {
		return nil, fmt.Errorf("get top paths: %w", err)
	}

	var pending model.SiteCounters
	if s.pending != nil {
		pending, err = s.pending.PeekSiteCounters(ctx, siteID)
		if err != nil {
			// Stats stay useful without the unflushed deltas.
			s.logger.Warn("failed to read pending counters", "site_id", siteID, "error", err)
			pending = model.SiteCounters{}
		}
	}

	return &model.SiteStats{
		SiteID:       site.ID,
		HitCount:     site.HitCount,
		SessionCount: site.SessionCount,
		Pending:      pending,
		Period: model.StatsPeriod{
			From: from.Format("2006-01-02"),
			To:   to.AddDate(0, 0, -1).Format("2006-01-02"),
		},
		Pageviews:      totals.Pageviews,
		UniqueVisitors: totals.UniqueVisitors,
		Sessions:       totals.Sessions,
		BotHits:        totals.BotHits,
		TopPaths:       paths,
		GeneratedAt:    now,
	}, nil
}
