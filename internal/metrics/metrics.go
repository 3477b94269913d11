// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Hit endpoint metrics
	IncHit(outcome string) // outcome: "recorded", "throttled", "unknown_site", "untracked", "admin", "invalid", "error", "panic"
	ObserveHitDuration(duration time.Duration)

	// Site lookup metrics
	IncSiteCacheHit()
	IncSiteCacheMiss()

	// Analytics pipeline metrics
	IncRecordPublished(status string) // status: "success" or "dropped"
	IncRecordProcessed(status string) // status: "success", "failed", "dead_lettered"
	ObserveBatchSize(size int)
	ObserveBatchDuration(duration time.Duration)
	SetQueueDepth(depth int64)
	ObserveIngestLag(lag time.Duration)

	// Counter flush metrics
	IncCountersFlushed(sites int)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
