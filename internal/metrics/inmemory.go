package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Hits                 map[string]uint64
	HitDurationCount     uint64
	HitDurationTotalNs   int64
	SiteCacheHits        uint64
	SiteCacheMisses      uint64
	RecordsPublished     map[string]uint64
	RecordsProcessed     map[string]uint64
	BatchCount           uint64
	BatchRecordsTotal    uint64
	BatchDurationTotalNs int64
	QueueDepth           int64
	IngestLagCount       uint64
	IngestLagTotalNs     int64
	CounterFlushes       uint64
	SitesFlushed         uint64
}

// InMemoryRecorder stores metrics in memory. It backs /metrics and tests.
type InMemoryRecorder struct {
	mu               sync.Mutex
	hits             map[string]uint64
	recordsPublished map[string]uint64
	recordsProcessed map[string]uint64

	hitDurationCount     uint64
	hitDurationTotalNs   int64
	siteCacheHits        uint64
	siteCacheMisses      uint64
	batchCount           uint64
	batchRecordsTotal    uint64
	batchDurationTotalNs int64
	queueDepth           int64
	ingestLagCount       uint64
	ingestLagTotalNs     int64
	counterFlushes       uint64
	sitesFlushed         uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		hits:             make(map[string]uint64),
		recordsPublished: make(map[string]uint64),
		recordsProcessed: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	hits := copyCounts(m.hits)
	published := copyCounts(m.recordsPublished)
	processed := copyCounts(m.recordsProcessed)
	m.mu.Unlock()

	return Snapshot{
		Hits:                 hits,
		HitDurationCount:     atomic.LoadUint64(&m.hitDurationCount),
		HitDurationTotalNs:   atomic.LoadInt64(&m.hitDurationTotalNs),
		SiteCacheHits:        atomic.LoadUint64(&m.siteCacheHits),
		SiteCacheMisses:      atomic.LoadUint64(&m.siteCacheMisses),
		RecordsPublished:     published,
		RecordsProcessed:     processed,
		BatchCount:           atomic.LoadUint64(&m.batchCount),
		BatchRecordsTotal:    atomic.LoadUint64(&m.batchRecordsTotal),
		BatchDurationTotalNs: atomic.LoadInt64(&m.batchDurationTotalNs),
		QueueDepth:           atomic.LoadInt64(&m.queueDepth),
		IngestLagCount:       atomic.LoadUint64(&m.ingestLagCount),
		IngestLagTotalNs:     atomic.LoadInt64(&m.ingestLagTotalNs),
		CounterFlushes:       atomic.LoadUint64(&m.counterFlushes),
		SitesFlushed:         atomic.LoadUint64(&m.sitesFlushed),
	}
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, label string) {
	m.mu.Lock()
	counts[label]++
	m.mu.Unlock()
}

// IncHit counts a hit by outcome.
func (m *InMemoryRecorder) IncHit(outcome string) {
	m.inc(m.hits, outcome)
}

// ObserveHitDuration records hit handling duration.
func (m *InMemoryRecorder) ObserveHitDuration(duration time.Duration) {
	atomic.AddUint64(&m.hitDurationCount, 1)
	atomic.AddInt64(&m.hitDurationTotalNs, duration.Nanoseconds())
}

// IncSiteCacheHit increments site cache hit counter.
func (m *InMemoryRecorder) IncSiteCacheHit() {
	atomic.AddUint64(&m.siteCacheHits, 1)
}

// IncSiteCacheMiss increments site cache miss counter.
func (m *InMemoryRecorder) IncSiteCacheMiss() {
	atomic.AddUint64(&m.siteCacheMisses, 1)
}

// IncRecordPublished counts stream publishes by status.
func (m *InMemoryRecorder) IncRecordPublished(status string) {
	m.inc(m.recordsPublished, status)
}

// IncRecordProcessed counts worker outcomes by status.
func (m *InMemoryRecorder) IncRecordProcessed(status string) {
	m.inc(m.recordsProcessed, status)
}

// ObserveBatchSize records a persisted batch size.
func (m *InMemoryRecorder) ObserveBatchSize(size int) {
	atomic.AddUint64(&m.batchCount, 1)
	atomic.AddUint64(&m.batchRecordsTotal, uint64(size))
}

// ObserveBatchDuration records batch persistence duration.
func (m *InMemoryRecorder) ObserveBatchDuration(duration time.Duration) {
	atomic.AddInt64(&m.batchDurationTotalNs, duration.Nanoseconds())
}

// SetQueueDepth stores the latest stream backlog.
func (m *InMemoryRecorder) SetQueueDepth(depth int64) {
	atomic.StoreInt64(&m.queueDepth, depth)
}

// ObserveIngestLag records the delay between acceptance and persistence.
func (m *InMemoryRecorder) ObserveIngestLag(lag time.Duration) {
	atomic.AddUint64(&m.ingestLagCount, 1)
	atomic.AddInt64(&m.ingestLagTotalNs, lag.Nanoseconds())
}

// IncCountersFlushed records one flush pass and the number of sites it touched.
func (m *InMemoryRecorder) IncCountersFlushed(sites int) {
	atomic.AddUint64(&m.counterFlushes, 1)
	atomic.AddUint64(&m.sitesFlushed, uint64(sites))
}
