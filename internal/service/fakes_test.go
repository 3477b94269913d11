package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pagedrop/pagedrop/internal/cache"
	"github.com/pagedrop/pagedrop/internal/model"
	"github.com/pagedrop/pagedrop/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSiteStore struct {
	mu    sync.Mutex
	sites map[string]*model.Site
	err   error
	calls int
}

func (f *fakeSiteStore) GetSiteByID(_ context.Context, id string) (*model.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	site, ok := f.sites[id]
	if !ok {
		return nil, repository.ErrSiteNotFound
	}
	return site, nil
}

type fakeSiteCache struct {
	mu        sync.Mutex
	sites     map[string]*model.CachedSite
	negative  map[string]bool
	getErr    error
	counters  map[string]model.SiteCounters
	sessions  map[string]bool
	increment chan struct{}
}

func newFakeSiteCache() *fakeSiteCache {
	return &fakeSiteCache{
		sites:     make(map[string]*model.CachedSite),
		negative:  make(map[string]bool),
		counters:  make(map[string]model.SiteCounters),
		sessions:  make(map[string]bool),
		increment: make(chan struct{}, 16),
	}
}

func (f *fakeSiteCache) GetSite(_ context.Context, siteID string) (*model.CachedSite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	cached, ok := f.sites[siteID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cached, nil
}

func (f *fakeSiteCache) SetSite(_ context.Context, site *model.Site, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sites[site.ID] = site.ToCachedSite()
	delete(f.negative, site.ID)
	return nil
}

func (f *fakeSiteCache) IsNegativelyCached(_ context.Context, siteID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.negative[siteID], nil
}

func (f *fakeSiteCache) SetNegativeCache(_ context.Context, siteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.negative[siteID] = true
	return nil
}

func (f *fakeSiteCache) IncrementSiteCounters(_ context.Context, siteID, sessionID string, bot bool, _ time.Duration) error {
	f.mu.Lock()
	c := f.counters[siteID]
	c.Hits++
	key := siteID + ":" + sessionID
	if sessionID != "" && !f.sessions[key] {
		f.sessions[key] = true
		c.Sessions++
	}
	if bot {
		c.BotHits++
	}
	f.counters[siteID] = c
	f.mu.Unlock()

	f.increment <- struct{}{}
	return nil
}

func (f *fakeSiteCache) PeekSiteCounters(_ context.Context, siteID string) (model.SiteCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[siteID], nil
}

func (f *fakeSiteCache) ScanCounterKeys(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.counters))
	for id := range f.counters {
		keys = append(keys, cache.CountersKey(id))
	}
	return keys, nil
}

func (f *fakeSiteCache) GetAndResetSiteCounters(_ context.Context, siteID string) (model.SiteCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.counters[siteID]
	delete(f.counters, siteID)
	return c, nil
}

func (f *fakeSiteCache) RestoreSiteCounters(_ context.Context, siteID string, counters model.SiteCounters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.counters[siteID]
	c.Hits += counters.Hits
	c.Sessions += counters.Sessions
	c.BotHits += counters.BotHits
	f.counters[siteID] = c
	return nil
}

type fakeCounterSink struct {
	mu      sync.Mutex
	applied map[string]model.SiteCounters
	known   map[string]bool
	err     error
}

func (f *fakeCounterSink) ApplyCounterDeltas(_ context.Context, deltas map[string]model.SiteCounters) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.applied == nil {
		f.applied = make(map[string]model.SiteCounters)
	}
	var missing []string
	for id, d := range deltas {
		if f.known != nil && !f.known[id] {
			missing = append(missing, id)
			continue
		}
		c := f.applied[id]
		c.Hits += d.Hits
		c.Sessions += d.Sessions
		c.BotHits += d.BotHits
		f.applied[id] = c
	}
	return missing, nil
}

var errDatabaseDown = errors.New("database down")
