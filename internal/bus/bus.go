// Package bus implements the in-process topic pub/sub that couples input
// producers (UI, voice, scheduler) to the agent runtime and back out to
// output consumers.
package bus

import (
	"context"
	"log/slog"
	"sync"
)

// Handler processes one message published to a topic. A handler that
// returns an error does not abort delivery to sibling handlers; the bus
// logs the error and continues.
type Handler func(ctx context.Context, msg any) error

// Bus is the contract the rest of the core depends on: subscribe and
// publish. Any implementation satisfying this interface — in-memory or
// network-backed — is interchangeable with the Agent Runtime.
type Bus interface {
	Subscribe(topic string, handler Handler) Subscription
	Publish(ctx context.Context, topic string, msg any) error
}

// Subscription is returned by Subscribe and can be closed to unregister a
// handler. Closing is idempotent.
type Subscription interface {
	Close()
}

// Topics used by the core.
const (
	TopicInputText        = "input.text"
	TopicInputTextPartial  = "input.text.partial"
	TopicOutputText        = "output.text"
)

// MemoryBus is the in-process Bus implementation. Publish fans out to all
// current subscribers of a topic, awaiting each sequentially in
// subscription order (FIFO per publisher per topic). It has no
// persistence, no redelivery, and no backpressure beyond the cooperative
// call stack.
type MemoryBus struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[string][]*subscription
}

type subscription struct {
	bus     *MemoryBus
	topic   string
	handler Handler
	once    sync.Once
}

// Option configures a MemoryBus.
type Option func(*MemoryBus)

// WithLogger overrides the bus's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *MemoryBus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewMemoryBus constructs a ready-to-use in-memory bus.
func NewMemoryBus(opts ...Option) *MemoryBus {
	b := &MemoryBus{
		logger:      slog.Default().With("component", "bus"),
		subscribers: make(map[string][]*subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler on topic. Handlers for the same topic fire
// in subscription order on every Publish.
func (b *MemoryBus) Subscribe(topic string, handler Handler) Subscription {
	sub := &subscription{bus: b, topic: topic, handler: handler}
	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.mu.Unlock()
	return sub
}

// Publish delivers msg to every subscriber currently registered on topic,
// awaiting each in turn. A handler error is logged and does not stop
// delivery to the remaining subscribers, nor is it returned to the
// caller — per §4.1 the bus guarantees delivery continues regardless.
func (b *MemoryBus) Publish(ctx context.Context, topic string, msg any) error {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subscribers[topic]))
	copy(subs, b.subscribers[topic])
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.handler(ctx, msg); err != nil {
			b.logger.Error("bus handler failed", "topic", topic, "error", err)
		}
	}
	return nil
}

func (s *subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		subs := s.bus.subscribers[s.topic]
		for i, candidate := range subs {
			if candidate == s {
				s.bus.subscribers[s.topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	})
}
