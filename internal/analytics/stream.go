package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// deadLetterMaxLen caps the dead-letter stream.
const deadLetterMaxLen = 10000

// recordStream is the consumer side of the record stream as the worker
// sees it.
type recordStream interface {
	EnsureGroup(ctx context.Context) error
	Read(ctx context.Context, consumer string, count int, block time.Duration) ([]redis.XMessage, error)
	// Claim takes over entries idle for at least minIdle, scanning from
	// start. It returns the cursor for the next scan.
	Claim(ctx context.Context, consumer, start string, minIdle time.Duration, count int) ([]redis.XMessage, string, error)
	// Backlog returns pending plus undelivered entries of the group, and
	// false if the group does not exist yet.
	Backlog(ctx context.Context) (int64, bool, error)
	DeadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) error
	Ack(ctx context.Context, ids ...string) error
}

// redisStream implements recordStream on Redis streams.
type redisStream struct {
	client *redis.Client
}

func (s *redisStream) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (s *redisStream) Read(ctx context.Context, consumer string, count int, block time.Duration) ([]redis.XMessage, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: consumer,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

func (s *redisStream) Claim(ctx context.Context, consumer, start string, minIdle time.Duration, count int) ([]redis.XMessage, string, error) {
	messages, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    start,
		Count:    int64(count),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, "", fmt.Errorf("xautoclaim: %w", err)
	}
	return messages, next, nil
}

func (s *redisStream) Backlog(ctx context.Context) (int64, bool, error) {
	groups, err := s.client.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, false, fmt.Errorf("xinfo groups: %w", err)
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			return g.Pending + g.Lag, true, nil
		}
	}
	return 0, false, nil
}

func (s *redisStream) DeadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) error {
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"original_stream":  StreamKey,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
}

func (s *redisStream) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}
