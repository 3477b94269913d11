package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncHit is a no-op.
func (n *NoopRecorder) IncHit(outcome string) {}

// ObserveHitDuration is a no-op.
func (n *NoopRecorder) ObserveHitDuration(duration time.Duration) {}

// IncSiteCacheHit is a no-op.
func (n *NoopRecorder) IncSiteCacheHit() {}

// IncSiteCacheMiss is a no-op.
func (n *NoopRecorder) IncSiteCacheMiss() {}

// IncRecordPublished is a no-op.
func (n *NoopRecorder) IncRecordPublished(status string) {}

// IncRecordProcessed is a no-op.
func (n *NoopRecorder) IncRecordProcessed(status string) {}

// ObserveBatchSize is a no-op.
func (n *NoopRecorder) ObserveBatchSize(size int) {}

// ObserveBatchDuration is a no-op.
func (n *NoopRecorder) ObserveBatchDuration(duration time.Duration) {}

// SetQueueDepth is a no-op.
func (n *NoopRecorder) SetQueueDepth(depth int64) {}

// ObserveIngestLag is a no-op.
func (n *NoopRecorder) ObserveIngestLag(lag time.Duration) {}

// IncCountersFlushed is a no-op.
func (n *NoopRecorder) IncCountersFlushed(sites int) {}
