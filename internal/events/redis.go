package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultChannelPrefix is prepended to the event type to form the pub/sub channel.
	DefaultChannelPrefix = "settlement:"
	// DefaultStream is the durable stream every event is appended to.
	DefaultStream = "settlement:events"

	streamMaxLen int64 = 10000
)

// RedisPublisher sends each event on a pub/sub channel for live listeners
// and appends it to a capped stream for consumers that replay.
type RedisPublisher struct {
	rdb           *redis.Client
	channelPrefix string
	stream        string
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher creates a publisher. Empty names fall back to the defaults.
func NewRedisPublisher(rdb *redis.Client, channelPrefix, stream string) *RedisPublisher {
	if channelPrefix == "" {
		channelPrefix = DefaultChannelPrefix
	}
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{rdb: rdb, channelPrefix: channelPrefix, stream: stream}
}

// Channel returns the pub/sub channel used for eventType.
func (p *RedisPublisher) Channel(eventType string) string {
	return p.channelPrefix + eventType
}

func (p *RedisPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	pipe := p.rdb.Pipeline()
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("redis: encode event %s: %w", e.ID, err)
		}
		pipe.Publish(ctx, p.Channel(e.Type), data)
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"type":    e.Type,
				"payload": data,
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish events: %w", err)
	}
	return nil
}
