package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event types.
const (
	EventTurn  = "turn"
	EventRound = "round"
)

// Event is one committed turn or round of a run.
type Event struct {
	ID        string             `json:"id,omitempty"`
	RunID     string             `json:"run_id"`
	Type      string             `json:"type"`
	Round     int                `json:"round"`
	Turn      *agent.TurnResult  `json:"turn,omitempty"`
	Record    *agent.RoundRecord `json:"record,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// EventBus publishes run events to Redis Streams, one stream per run.
type EventBus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// New creates a Redis-backed event bus.
func New(ctx context.Context, redisURL string, logger *zap.Logger) (*EventBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &EventBus{rdb: rdb, logger: logger}, nil
}

const streamPrefix = "tinyworld:run:"

// Stream returns the stream key of a run.
func Stream(runID string) string { return streamPrefix + runID }

// Publish appends an event to its run's stream.
func (b *EventBus) Publish(ctx context.Context, ev *Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	stream := Stream(ev.RunID)
	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"type": ev.Type,
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}
	ev.ID = id

	b.logger.Debug("published event",
		zap.String("run", ev.RunID),
		zap.String("type", ev.Type),
		zap.Int("round", ev.Round))
	return nil
}

// TurnCompleted publishes a turn event.
func (b *EventBus) TurnCompleted(ctx context.Context, runID string, res agent.TurnResult) error {
	return b.Publish(ctx, &Event{RunID: runID, Type: EventTurn, Round: res.Round, Turn: &res})
}

// RoundCompleted publishes a round event.
func (b *EventBus) RoundCompleted(ctx context.Context, runID string, rec agent.RoundRecord) error {
	return b.Publish(ctx, &Event{RunID: runID, Type: EventRound, Round: rec.Round, Record: &rec})
}

// Replay returns every event recorded for a run, oldest first.
func (b *EventBus) Replay(ctx context.Context, runID string) ([]Event, error) {
	msgs, err := b.rdb.XRange(ctx, Stream(runID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", runID, err)
	}
	out := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		if ev, ok := decode(m); ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Subscribe streams new events of a run. Cancel the context to stop.
func (b *EventBus) Subscribe(ctx context.Context, runID string) <-chan Event {
	ch := make(chan Event, 16)
	stream := Stream(runID)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			if ctx.Err() != nil {
				return
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					b.logger.Warn("read run stream", zap.String("stream", stream), zap.Error(err))
				}
				continue
			}

			for _, r := range results {
				for _, m := range r.Messages {
					lastID = m.ID
					ev, ok := decode(m)
					if !ok {
						continue
					}
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

func decode(m redis.XMessage) (Event, bool) {
	data, ok := m.Values["data"].(string)
	if !ok {
		return Event{}, false
	}
	var ev Event
	if json.Unmarshal([]byte(data), &ev) != nil {
		return Event{}, false
	}
	ev.ID = m.ID
	return ev, true
}

// Close shuts down the Redis connection.
func (b *EventBus) Close() error {
	return b.rdb.Close()
}
