package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pagedrop/pagedrop/internal/cache"
	"github.com/pagedrop/pagedrop/internal/metrics"
	"github.com/pagedrop/pagedrop/internal/model"
)

// DefaultFlushInterval is how often Redis counters are folded into Postgres.
const DefaultFlushInterval = 30 * time.Second

// CounterSource is the Redis side of the counter flush.
type CounterSource interface {
	ScanCounterKeys(ctx context.Context) ([]string, error)
	GetAndResetSiteCounters(ctx context.Context, siteID string) (model.SiteCounters, error)
	RestoreSiteCounters(ctx context.Context, siteID string, counters model.SiteCounters) error
}

// CounterSink persists counter deltas and reports unknown site ids.
type CounterSink interface {
	ApplyCounterDeltas(ctx context.Context, deltas map[string]model.SiteCounters) ([]string, error)
}

// CounterFlusher periodically moves site counters from Redis to Postgres.
type CounterFlusher struct {
	source   CounterSource
	sink     CounterSink
	logger   *slog.Logger
	metrics  metrics.Recorder
	interval time.Duration

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewCounterFlusher creates a new CounterFlusher.
func NewCounterFlusher(source CounterSource, sink CounterSink, logger *slog.Logger, recorder metrics.Recorder, interval time.Duration) *CounterFlusher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &CounterFlusher{
		source:   source,
		sink:     sink,
		logger:   logger.With("component", "service.counter_flusher"),
		metrics:  recorder,
		interval: interval,
	}
}

// Run flushes on every tick until ctx is cancelled or Shutdown is called.
func (f *CounterFlusher) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return errors.New("counter flusher already started")
	}
	f.started = true
	f.done = make(chan struct{})
	ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	defer close(f.done)

	f.logger.Info("counter flusher started", "interval", f.interval.String())

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := f.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				f.logger.Error("counter flush failed", "error", err)
			}
		}
	}
}

// Shutdown stops the loop and performs one final flush with ctx.
func (f *CounterFlusher) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	started := f.started
	cancel := f.cancel
	done := f.done
	f.mu.Unlock()

	if !started {
		return nil
	}

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	n, err := f.Flush(ctx)
	if err != nil {
		f.logger.Warn("final counter flush failed", "error", err)
		return err
	}
	f.logger.Info("counter flusher stopped", "sites_flushed", n)
	return nil
}

// Flush moves all pending counters into the database once.
// It returns the number of sites updated. On a database failure the
// deltas are added back to Redis so nothing is lost.
func (f *CounterFlusher) Flush(ctx context.Context) (int, error) {
	keys, err := f.source.ScanCounterKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("scan counter keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deltas := make(map[string]model.SiteCounters, len(keys))
	for _, key := range keys {
		siteID := cache.ExtractSiteIDFromCounterKey(key)
		if siteID == "" {
			continue
		}
		counters, err := f.source.GetAndResetSiteCounters(ctx, siteID)
		if err != nil {
			f.logger.Warn("failed to read site counters", "site_id", siteID, "error", err)
			continue
		}
		if counters.IsZero() {
			continue
		}
		deltas[siteID] = counters
	}

	if len(deltas) == 0 {
		return 0, nil
	}

	missing, err := f.sink.ApplyCounterDeltas(ctx, deltas)
	if err != nil {
		f.restore(deltas)
		return 0, fmt.Errorf("apply counter deltas: %w", err)
	}

	for _, id := range missing {
		f.logger.Warn("dropping counters for unknown site", "site_id", id, "hits", deltas[id].Hits)
	}

	flushed := len(deltas) - len(missing)
	f.metrics.IncCountersFlushed(flushed)
	f.logger.Debug("counters flushed", "sites", flushed)

	return flushed, nil
}

func (f *CounterFlusher) restore(deltas map[string]model.SiteCounters) {
	// The caller's ctx may be what failed; restore on a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for siteID, counters := range deltas {
		if err := f.source.RestoreSiteCounters(ctx, siteID, counters); err != nil {
			f.logger.Error("failed to restore site counters",
				"site_id", siteID,
				"hits", counters.Hits,
				"error", err,
			)
		}
	}
}
