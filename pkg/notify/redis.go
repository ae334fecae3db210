package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/parley-labs/parley/pkg/contracts"
)

// RedisChannel fans events out over redis pub/sub so any number of API
// nodes can serve the same session. Connected-participant membership lives
// in a per-session set with a TTL refreshed on join.
type RedisChannel struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisChannel(url string, logger *slog.Logger) (*RedisChannel, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisChannel{rdb: redis.NewClient(opts), logger: logger}, nil
}

func eventChannel(sessionID string) string { return "parley:session:" + sessionID + ":events" }
func memberKey(sessionID string) string    { return "parley:session:" + sessionID + ":members" }

func (c *RedisChannel) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := c.rdb.Publish(ctx, eventChannel(ev.SessionID), data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (c *RedisChannel) Join(ctx context.Context, sessionID string, n contracts.ParticipantNumber) error {
	if err := c.rdb.SAdd(ctx, memberKey(sessionID), int(n)).Err(); err != nil {
		return fmt.Errorf("join session channel: %w", err)
	}
	return nil
}

func (c *RedisChannel) Leave(ctx context.Context, sessionID string, n contracts.ParticipantNumber) error {
	if err := c.rdb.SRem(ctx, memberKey(sessionID), int(n)).Err(); err != nil {
		return fmt.Errorf("leave session channel: %w", err)
	}
	return nil
}

func (c *RedisChannel) Connected(ctx context.Context, sessionID string) ([]contracts.ParticipantNumber, error) {
	members, err := c.rdb.SMembers(ctx, memberKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list session members: %w", err)
	}
	var out []contracts.ParticipantNumber
	for _, m := range members {
		v, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		if n := contracts.ParticipantNumber(v); n.Valid() {
			out = append(out, n)
		}
	}
	return out, nil
}

// Subscribe streams a session's events until the returned cancel func runs.
func (c *RedisChannel) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	pubsub := c.rdb.Subscribe(ctx, eventChannel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				c.logger.Warn("dropping malformed event", "session_id", sessionID, "error", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
}

// Close shuts down the redis client.
func (c *RedisChannel) Close() error { return c.rdb.Close() }
