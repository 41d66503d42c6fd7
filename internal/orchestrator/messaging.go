package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/evaluation"
)

const streamPrefix = "campus:run:"

// EventBus publishes judged tasks to a per-run Redis Stream.
type EventBus struct {
	rdb    *redis.Client
	maxLen int64
	logger *zap.Logger
}

var _ Sink = (*EventBus)(nil)

// NewEventBus connects to Redis.
func NewEventBus(ctx context.Context, redisURL string, logger *zap.Logger) (*EventBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &EventBus{rdb: rdb, maxLen: 10000, logger: logger}, nil
}

// Stream returns the stream key for a run.
func Stream(runID string) string { return streamPrefix + runID }

// Record publishes res on the run's stream.
func (b *EventBus) Record(ctx context.Context, runID string, res evaluation.Result) error {
	return b.Publish(ctx, NewEvent(runID, res))
}

// Publish appends ev to its run's stream.
func (b *EventBus) Publish(ctx context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	stream := Stream(ev.RunID)
	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"task":    ev.TaskID,
			"outcome": string(ev.Outcome),
			"data":    string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	b.logger.Debug("published outcome",
		zap.String("run", ev.RunID),
		zap.String("task", ev.TaskID),
		zap.String("outcome", string(ev.Outcome)))
	return nil
}

// Subscribe streams a run's events from the beginning. Cancel the context
// to stop; the channel is closed on return.
func (b *EventBus) Subscribe(ctx context.Context, runID string) <-chan *Event {
	ch := make(chan *Event, 16)
	stream := Stream(runID)

	go func() {
		defer close(ch)
		lastID := "0"

		for {
			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, redis.Nil) {
					continue
				}
				b.logger.Warn("read stream", zap.String("stream", stream), zap.Error(err))
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev Event
					if json.Unmarshal([]byte(data), &ev) != nil {
						continue
					}
					select {
					case ch <- &ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (b *EventBus) Close() error {
	return b.rdb.Close()
}
