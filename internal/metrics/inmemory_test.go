package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestInMemoryRecorder_Snapshot(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncHit("recorded")
	m.IncHit("recorded")
	m.IncHit("throttled")
	m.ObserveHitDuration(2 * time.Millisecond)
	m.IncSiteCacheHit()
	m.IncSiteCacheMiss()
	m.IncRecordPublished("success")
	m.IncRecordProcessed("dead_lettered")
	m.ObserveBatchSize(25)
	m.ObserveBatchDuration(time.Millisecond)
	m.SetQueueDepth(7)
	m.SetQueueDepth(3)
	m.ObserveIngestLag(time.Second)
	m.IncCountersFlushed(4)

	s := m.Snapshot()
	if s.Hits["recorded"] != 2 || s.Hits["throttled"] != 1 {
		t.Errorf("Hits = %v", s.Hits)
	}
	if s.HitDurationCount != 1 || s.HitDurationTotalNs != int64(2*time.Millisecond) {
		t.Errorf("hit duration = %d/%d", s.HitDurationCount, s.HitDurationTotalNs)
	}
	if s.SiteCacheHits != 1 || s.SiteCacheMisses != 1 {
		t.Errorf("site cache = %d/%d", s.SiteCacheHits, s.SiteCacheMisses)
	}
	if s.RecordsPublished["success"] != 1 || s.RecordsProcessed["dead_lettered"] != 1 {
		t.Errorf("records = %v / %v", s.RecordsPublished, s.RecordsProcessed)
	}
	if s.BatchCount != 1 || s.BatchRecordsTotal != 25 {
		t.Errorf("batches = %d/%d", s.BatchCount, s.BatchRecordsTotal)
	}
	if s.QueueDepth != 3 {
		t.Errorf("QueueDepth = %d, want latest value 3", s.QueueDepth)
	}
	if s.CounterFlushes != 1 || s.SitesFlushed != 4 {
		t.Errorf("flushes = %d/%d", s.CounterFlushes, s.SitesFlushed)
	}
}

func TestInMemoryRecorder_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncHit("recorded")
	s := m.Snapshot()
	s.Hits["recorded"] = 100

	if got := m.Snapshot().Hits["recorded"]; got != 1 {
		t.Errorf("snapshot mutation leaked into recorder: %d", got)
	}
}

func TestInMemoryRecorder_Concurrent(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncHit("recorded")
			m.IncSiteCacheHit()
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	if s.Hits["recorded"] != 50 || s.SiteCacheHits != 50 {
		t.Errorf("concurrent counts = %d/%d, want 50/50", s.Hits["recorded"], s.SiteCacheHits)
	}
}

func TestNoopRecorder(t *testing.T) {
	t.Parallel()

	var r Recorder = NewNoop()
	r.IncHit("recorded")
	r.SetQueueDepth(1)
	r.IncCountersFlushed(1)
}
