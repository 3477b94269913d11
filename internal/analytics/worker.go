package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/pagedrop/pagedrop/internal/metrics"
	"github.com/pagedrop/pagedrop/internal/model"
)

// ConsumerGroup is the Redis consumer group shared by all record writers.
const ConsumerGroup = "analytics_writers"

// Repository persists analytics records. Inserts must ignore records whose
// event_id already exists.
type Repository interface {
	BulkInsert(ctx context.Context, records []*model.AnalyticsRecord) error
}

// WorkerConfig tunes the record worker. Zero fields take the defaults of
// DefaultWorkerConfig.
type WorkerConfig struct {
	BatchSize    int
	BlockTimeout time.Duration
	// MaxRetries bounds whole-batch insert attempts before the batch is
	// split to find poison records.
	MaxRetries int
	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration
	// Pending entries idle longer than ClaimIdle are taken over from dead
	// consumers every ClaimInterval.
	ClaimInterval   time.Duration
	ClaimIdle       time.Duration
	MetricsInterval time.Duration
}

// DefaultWorkerConfig returns the production defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:       500,
		BlockTimeout:    5 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    2 * time.Second,
		ClaimInterval:   10 * time.Second,
		ClaimIdle:       30 * time.Second,
		MetricsInterval: 5 * time.Second,
	}
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	def := DefaultWorkerConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = def.BlockTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.ClaimInterval <= 0 {
		c.ClaimInterval = def.ClaimInterval
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = def.ClaimIdle
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = def.MetricsInterval
	}
	return c
}

// entry is a decoded stream message awaiting persistence.
type entry struct {
	msg    redis.XMessage
	record *model.AnalyticsRecord
}

// Worker moves analytics records from the Redis stream into Postgres.
//
// Each pass reads a batch, dead-letters entries that cannot be decoded and
// bulk inserts the rest. When the insert keeps failing the batch is retried
// record by record so one bad record cannot block the stream.
type Worker struct {
	stream     recordStream
	repo       Repository
	logger     *slog.Logger
	metrics    metrics.Recorder
	consumerID string
	cfg        WorkerConfig

	claimStart  string
	lastClaim   time.Time
	lastMetrics time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a worker reading the record stream as consumerID.
func NewWorker(client *redis.Client, repo Repository, logger *slog.Logger, consumerID string, recorder metrics.Recorder, cfg WorkerConfig) *Worker {
	return newWorker(&redisStream{client: client}, repo, logger, consumerID, recorder, cfg)
}

func newWorker(stream recordStream, repo Repository, logger *slog.Logger, consumerID string, recorder metrics.Recorder, cfg WorkerConfig) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		stream:     stream,
		repo:       repo,
		logger:     logger.With("component", "analytics.worker", "consumer_id", consumerID),
		metrics:    recorder,
		consumerID: consumerID,
		cfg:        cfg.withDefaults(),
		claimStart: "0-0",
	}
}

// Run consumes the stream until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()
	defer close(w.done)

	if err := w.stream.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}
	w.logger.Info("analytics worker started", "stream", StreamKey, "group", ConsumerGroup, "batch_size", w.cfg.BatchSize)

	for {
		if ctx.Err() != nil {
			w.logger.Info("analytics worker stopped")
			return nil
		}
		if err := w.processOnce(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("analytics worker pass failed", "error", err)
			if !sleepCtx(ctx, time.Second) {
				continue
			}
		}
	}
}

// Shutdown stops Run and waits for the current pass to finish. The worker
// context is cancelled first, so a blocking read returns at once.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("analytics worker shutdown timed out")
		return ctx.Err()
	}
}

// processOnce handles one batch: reclaimed entries first, otherwise new ones.
func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	messages, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending entries", "error", err)
	}
	if len(messages) == 0 {
		messages, err = w.stream.Read(ctx, w.consumerID, w.cfg.BatchSize, w.cfg.BlockTimeout)
		if err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	entries, ack := w.decode(ctx, messages)
	if len(entries) > 0 {
		persisted, err := w.persist(ctx, entries)
		ack = append(ack, persisted...)
		if err != nil {
			if ackErr := w.stream.Ack(ctx, ack...); ackErr != nil {
				w.logger.Warn("failed to ack after insert failure", "error", ackErr)
			}
			return err
		}
	}
	return w.stream.Ack(ctx, ack...)
}

// decode splits messages into persistable entries and the ids of entries
// already dead-lettered.
func (w *Worker) decode(ctx context.Context, messages []redis.XMessage) ([]entry, []string) {
	entries := make([]entry, 0, len(messages))
	var ack []string
	for _, msg := range messages {
		record, reason, err := DecodeMessage(msg)
		if err != nil {
			w.deadLetter(ctx, msg, reason, err.Error())
			ack = append(ack, msg.ID)
			continue
		}
		entries = append(entries, entry{msg: msg, record: record})
	}
	return entries, ack
}

// persist stores entries and returns the ids safe to acknowledge.
func (w *Worker) persist(ctx context.Context, entries []entry) ([]string, error) {
	records := make([]*model.AnalyticsRecord, len(entries))
	for i, e := range entries {
		records[i] = e.record
	}

	err := w.insertWithRetry(ctx, records)
	if err == nil {
		return entryIDs(entries), nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	w.logger.Warn("batch insert failed, isolating records", "batch_size", len(entries), "error", err)
	return w.isolate(ctx, entries)
}

type insertFailure struct {
	entry entry
	err   error
}

// isolate inserts entries one at a time. A failing record is dead-lettered
// when its error is permanent or when other records went through; if every
// insert fails transiently the database is treated as down and the
// failures stay pending.
func (w *Worker) isolate(ctx context.Context, entries []entry) ([]string, error) {
	var (
		ok       []string
		failures []insertFailure
	)
	for _, e := range entries {
		start := time.Now()
		if err := w.repo.BulkInsert(ctx, []*model.AnalyticsRecord{e.record}); err != nil {
			if ctx.Err() != nil {
				return ok, ctx.Err()
			}
			failures = append(failures, insertFailure{entry: e, err: err})
			continue
		}
		w.succeeded([]*model.AnalyticsRecord{e.record}, time.Since(start))
		ok = append(ok, e.msg.ID)
	}

	var lastErr error
	for _, f := range failures {
		if len(ok) > 0 || isPermanentInsertError(f.err) {
			w.deadLetter(ctx, f.entry.msg, "insert_error", f.err.Error())
			ok = append(ok, f.entry.msg.ID)
			continue
		}
		w.failed(1)
		lastErr = f.err
	}
	if lastErr != nil {
		return ok, fmt.Errorf("insert failed for every record: %w", lastErr)
	}
	return ok, nil
}

// isPermanentInsertError reports errors a retry cannot fix: Postgres data
// exceptions (class 22) and integrity violations (class 23).
func isPermanentInsertError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")
}

// insertWithRetry bulk inserts with exponential backoff.
func (w *Worker) insertWithRetry(ctx context.Context, records []*model.AnalyticsRecord) error {
	backoff := w.cfg.RetryBackoff
	var err error
	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		start := time.Now()
		if err = w.repo.BulkInsert(ctx, records); err == nil {
			w.succeeded(records, time.Since(start))
			return nil
		}
		if attempt == w.cfg.MaxRetries {
			break
		}
		w.logger.Warn("bulk insert failed, retrying",
			"attempt", attempt,
			"batch_size", len(records),
			"backoff", backoff.String(),
			"error", err,
		)
		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
		backoff *= 2
	}
	return fmt.Errorf("bulk insert: %w", err)
}

func (w *Worker) succeeded(records []*model.AnalyticsRecord, took time.Duration) {
	w.logger.Debug("batch persisted", "records", len(records), "duration_ms", float64(took.Microseconds())/1000)
	w.metrics.ObserveBatchSize(len(records))
	w.metrics.ObserveBatchDuration(took)
	for _, r := range records {
		w.metrics.IncRecordProcessed("success")
		w.metrics.ObserveIngestLag(time.Since(r.CreatedAt))
	}
}

func (w *Worker) failed(n int) {
	for i := 0; i < n; i++ {
		w.metrics.IncRecordProcessed("failed")
	}
}

func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering record", "message_id", msg.ID, "reason", reason, "detail", detail)
	if err := w.stream.DeadLetter(ctx, msg, reason, detail); err != nil {
		w.logger.Error("failed to write dead-letter entry", "message_id", msg.ID, "error", err)
	}
	w.metrics.IncRecordProcessed("dead_lettered")
}

func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.cfg.ClaimInterval {
		return nil, nil
	}
	w.lastClaim = time.Now()

	messages, next, err := w.stream.Claim(ctx, w.consumerID, w.claimStart, w.cfg.ClaimIdle, w.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	if next != "" {
		w.claimStart = next
	}
	if len(messages) > 0 {
		w.logger.Info("reclaimed pending entries", "count", len(messages))
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.cfg.MetricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	depth, ok, err := w.stream.Backlog(ctx)
	if err != nil {
		w.logger.Warn("failed to read stream backlog", "error", err)
		return
	}
	if ok {
		w.metrics.SetQueueDepth(depth)
	}
}

func entryIDs(entries []entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.msg.ID
	}
	return ids
}

// sleepCtx waits for d and reports whether ctx is still live.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
