package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// streamMaxLen is the approximate maximum length for the durable event stream,
// enforced via XADD MAXLEN ~. Older entries live on in the journal and in the
// archived segments; the stream only serves recent catch-up reads.
const streamMaxLen int64 = 10000

// EventBus implements domain.EventBus using Redis Pub/Sub for live fan-out and
// Redis Streams for durable, ordered catch-up delivery.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish sends a raw byte payload to a Redis Pub/Sub channel.
func (eb *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := eb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription and returns a read-only
// channel of raw payloads. The subscription closes when the context is
// cancelled; the returned channel is closed at that point as well.
func (eb *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = eb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = eb.rdb.Subscribe(ctx, channel)
	}

	// Verify the subscription is established before handing it out.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern reports whether the channel name includes glob-style wildcards,
// in which case PSubscribe must be used instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// StreamAppend appends a payload to the durable event stream with approximate
// MAXLEN trimming.
func (eb *EventBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := eb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead reads up to count messages from the stream starting after lastID.
// Use "0" or "0-0" as lastID to read from the beginning, or "$" for new
// messages only. An empty stream returns no messages and no error.
func (eb *EventBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	args := &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
	}

	results, err := eb.rdb.XRead(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var messages []domain.StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			payload, ok := msg.Values["payload"]
			if !ok {
				continue
			}

			var data []byte
			switch v := payload.(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}

			messages = append(messages, domain.StreamMessage{
				ID:      msg.ID,
				Payload: data,
			})
		}
	}

	return messages, nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
