package service

import (
	"github.com/pagedrop/pagedrop/internal/model"
)

// RecordPublisher hands records to the asynchronous persistence pipeline.
type RecordPublisher interface {
	PublishAsync(record *model.AnalyticsRecord)
}

// CounterIncrementer updates rolling site counters.
type CounterIncrementer interface {
	IncrementCounters(siteID, sessionID string, bot bool)
}

// HitSink fans an accepted hit out to the record stream and the counters.
// Both calls return immediately.
type HitSink struct {
	publisher RecordPublisher
	counters  CounterIncrementer
}

// NewHitSink creates a HitSink. A nil publisher disables record persistence.
func NewHitSink(publisher RecordPublisher, counters CounterIncrementer) *HitSink {
	return &HitSink{publisher: publisher, counters: counters}
}

// Record enqueues a record for persistence.
func (s *HitSink) Record(record *model.AnalyticsRecord) {
	if s.publisher == nil || record == nil {
		return
	}
	s.publisher.PublishAsync(record)
}

// IncrementCounters bumps the site's hit, session and bot counters.
func (s *HitSink) IncrementCounters(siteID, sessionID string, bot bool) {
	if s.counters == nil {
		return
	}
	s.counters.IncrementCounters(siteID, sessionID, bot)
}
