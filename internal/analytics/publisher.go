package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pagedrop/pagedrop/internal/metrics"
	"github.com/pagedrop/pagedrop/internal/model"
)

const (
	// StreamKey is the Redis stream for analytics records.
	StreamKey = "stream:analytics_records"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:analytics_records:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// Publisher enqueues analytics records to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new analytics record publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "analytics.publisher"),
		metrics: recorder,
	}
}

// EncodeRecord serializes a record into the stream payload.
func EncodeRecord(record *model.AnalyticsRecord) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}

// DecodeMessage turns a stream entry into a validated record. The second
// return value names the failure for the dead-letter stream. The entry id
// becomes the record's idempotency key.
func DecodeMessage(msg redis.XMessage) (*model.AnalyticsRecord, string, error) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, "invalid_format", errors.New("payload field missing or not a string")
	}

	var record model.AnalyticsRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, "unmarshal_error", err
	}
	if err := ValidateRecordPayload(&record); err != nil {
		return nil, "validation_error", err
	}

	record.EventID = msg.ID
	if record.ID == "" {
		record.ID = ulid.Make().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return &record, "", nil
}

// Publish adds a record to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, record *model.AnalyticsRecord) (string, error) {
	payload, err := EncodeRecord(record)
	if err != nil {
		return "", err
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": payload,
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return id, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged and counted, never returned.
func (p *Publisher) PublishAsync(record *model.AnalyticsRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, record)
		if err != nil {
			p.logger.Warn("failed to publish analytics record",
				"site_id", record.SiteID,
				"event_type", record.EventType,
				"error", err,
			)
			p.metrics.IncRecordPublished("dropped")
			return
		}

		p.logger.Debug("analytics record published",
			"site_id", record.SiteID,
			"stream_id", streamID,
		)
		p.metrics.IncRecordPublished("success")
	}()
}
