package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus is the network-backed Bus implementation spec.md §4.1 requires
// ("the bus must be swappable with a network-backed implementation, e.g.
// Redis"). Topics map onto Redis pub/sub channels one-to-one; messages are
// JSON-encoded on the wire and decoded on receipt into a generic value
// (map[string]any, []any, string, float64, ...), not into the publisher's
// Go type, so a handler that type-asserts a concrete struct payload does
// not receive it from this bus.
type RedisBus struct {
	rdb    *redis.Client
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[string][]*redisSubscription
}

type redisSubscription struct {
	bus     *RedisBus
	topic   string
	cancel  context.CancelFunc
	once    sync.Once
}

// NewRedisBus wraps an existing *redis.Client as a Bus.
func NewRedisBus(rdb *redis.Client, opts ...Option) *RedisBus {
	b := &RedisBus{
		rdb:    rdb,
		logger: slog.Default().With("component", "bus"),
		subs:   make(map[string][]*redisSubscription),
	}
	// Reuse the MemoryBus option type for logger injection only.
	tmp := &MemoryBus{logger: b.logger}
	for _, opt := range opts {
		opt(tmp)
	}
	b.logger = tmp.logger
	return b
}

// Subscribe opens a Redis pub/sub subscription on topic and invokes
// handler for each message received, decoding the JSON payload into a
// map[string]any (callers that need a concrete type should re-marshal).
func (b *RedisBus) Subscribe(topic string, handler Handler) Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &redisSubscription{bus: b, topic: topic, cancel: cancel}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	pubsub := b.rdb.Subscribe(ctx, topic)
	go func() {
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
				var payload any
				if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
					b.logger.Error("redis bus decode failed", "topic", topic, "error", err)
					continue
				}
				if err := handler(ctx, payload); err != nil {
					b.logger.Error("bus handler failed", "topic", topic, "error", err)
				}
			}
		}
	}()

	return sub
}

// Publish JSON-encodes msg and publishes it on the Redis channel named
// topic.
func (b *RedisBus) Publish(ctx context.Context, topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := b.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

func (s *redisSubscription) Close() {
	s.once.Do(func() {
		s.cancel()
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		subs := s.bus.subs[s.topic]
		for i, candidate := range subs {
			if candidate == s {
				s.bus.subs[s.topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	})
}
