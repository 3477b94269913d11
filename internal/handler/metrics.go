package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/pagedrop/pagedrop/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeLabeled(w, "pagedrop_hits_total", "outcome", snap.Hits)
	writeMetric(w, "pagedrop_hit_duration_seconds_count %d\n", snap.HitDurationCount)
	writeMetric(w, "pagedrop_hit_duration_seconds_sum %.6f\n", float64(snap.HitDurationTotalNs)/1e9)

	writeMetric(w, "pagedrop_site_cache_hits_total %d\n", snap.SiteCacheHits)
	writeMetric(w, "pagedrop_site_cache_misses_total %d\n", snap.SiteCacheMisses)

	writeLabeled(w, "pagedrop_records_published_total", "status", snap.RecordsPublished)
	writeLabeled(w, "pagedrop_records_processed_total", "status", snap.RecordsProcessed)

	writeMetric(w, "pagedrop_analytics_batches_total %d\n", snap.BatchCount)
	writeMetric(w, "pagedrop_analytics_batch_records_total %d\n", snap.BatchRecordsTotal)
	writeMetric(w, "pagedrop_analytics_batch_duration_seconds_sum %.6f\n", float64(snap.BatchDurationTotalNs)/1e9)
	writeMetric(w, "pagedrop_analytics_queue_depth %d\n", snap.QueueDepth)
	writeMetric(w, "pagedrop_analytics_ingest_lag_seconds_count %d\n", snap.IngestLagCount)
	writeMetric(w, "pagedrop_analytics_ingest_lag_seconds_sum %.6f\n", float64(snap.IngestLagTotalNs)/1e9)

	writeMetric(w, "pagedrop_counter_flushes_total %d\n", snap.CounterFlushes)
	writeMetric(w, "pagedrop_counter_sites_flushed_total %d\n", snap.SitesFlushed)
}

// writeLabeled writes one series per label value in stable order.
func writeLabeled(w http.ResponseWriter, name, label string, values map[string]uint64) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
