// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagedrop/pagedrop/internal/cache"
	"github.com/pagedrop/pagedrop/internal/metrics"
	"github.com/pagedrop/pagedrop/internal/model"
	"github.com/pagedrop/pagedrop/internal/repository"
)

// Service errors.
var (
	ErrSiteNotFound = errors.New("site not found")
)

// SiteStore reads sites from the primary database.
type SiteStore interface {
	GetSiteByID(ctx context.Context, id string) (*model.Site, error)
}

// SiteCache is the Redis side of site lookups and counters.
type SiteCache interface {
	GetSite(ctx context.Context, siteID string) (*model.CachedSite, error)
	SetSite(ctx context.Context, site *model.Site, ttl time.Duration) error
	IsNegativelyCached(ctx context.Context, siteID string) (bool, error)
	SetNegativeCache(ctx context.Context, siteID string) error
	IncrementSiteCounters(ctx context.Context, siteID, sessionID string, bot bool, window time.Duration) error
	PeekSiteCounters(ctx context.Context, siteID string) (model.SiteCounters, error)
}

// counterTimeout bounds the fire-and-forget counter increment.
const counterTimeout = 250 * time.Millisecond

// SiteService resolves sites for hit ingestion and maintains their counters.
type SiteService struct {
	store         SiteStore
	cache         SiteCache
	logger        *slog.Logger
	metrics       metrics.Recorder
	cacheTTL      time.Duration
	sessionWindow time.Duration
}

// SiteServiceOptions configures a SiteService.
type SiteServiceOptions struct {
	CacheTTL      time.Duration
	SessionWindow time.Duration
}

// NewSiteService creates a new SiteService.
func NewSiteService(store SiteStore, siteCache SiteCache, logger *slog.Logger, recorder metrics.Recorder, opts SiteServiceOptions) *SiteService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.DefaultSiteTTL
	}
	if opts.SessionWindow <= 0 {
		opts.SessionWindow = 30 * time.Minute
	}
	return &SiteService{
		store:         store,
		cache:         siteCache,
		logger:        logger.With("component", "service.site"),
		metrics:       recorder,
		cacheTTL:      opts.CacheTTL,
		sessionWindow: opts.SessionWindow,
	}
}

// ResolveSite looks a site up for the hit path: cache, negative cache,
// database, then cache backfill. Redis failures fall through to the database.
func (s *SiteService) ResolveSite(ctx context.Context, siteID string) (*model.Site, error) {
	cached, err := s.cache.GetSite(ctx, siteID)
	if err == nil {
		s.metrics.IncSiteCacheHit()
		return cached.ToSite(siteID), nil
	}

	if errors.Is(err, cache.ErrCacheMiss) {
		s.metrics.IncSiteCacheMiss()
		negative, negErr := s.cache.IsNegativelyCached(ctx, siteID)
		if negErr != nil {
			s.logger.Warn("negative cache check failed", "site_id", siteID, "error", negErr)
		}
		if negative {
			return nil, ErrSiteNotFound
		}
	} else {
		s.logger.Warn("site cache read failed", "site_id", siteID, "error", err)
	}

	site, err := s.store.GetSiteByID(ctx, siteID)
	if err != nil {
		if errors.Is(err, repository.ErrSiteNotFound) {
			if cacheErr := s.cache.SetNegativeCache(ctx, siteID); cacheErr != nil {
				s.logger.Warn("failed to set negative cache", "site_id", siteID, "error", cacheErr)
			}
			return nil, ErrSiteNotFound
		}
		return nil, fmt.Errorf("resolve site: %w", err)
	}

	if err := s.cache.SetSite(ctx, site, s.cacheTTL); err != nil {
		s.logger.Warn("failed to backfill site cache", "site_id", siteID, "error", err)
	}

	return site, nil
}

// IncrementCounters bumps the site's rolling counters without blocking the
// caller. Failures are logged only.
func (s *SiteService) IncrementCounters(siteID, sessionID string, bot bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), counterTimeout)
		defer cancel()

		if err := s.cache.IncrementSiteCounters(ctx, siteID, sessionID, bot, s.sessionWindow); err != nil {
			s.logger.Warn("failed to increment site counters",
				"site_id", siteID,
				"error", err,
			)
		}
	}()
}
