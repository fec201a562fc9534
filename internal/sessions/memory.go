package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/models"
)

// MemoryStore is the in-memory Store implementation used for tests and
// local runs. Sessions are created lazily on first AddMessage.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]models.Message
	now      func() time.Time
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(m *MemoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	m := &MemoryStore{
		messages: make(map[string][]models.Message),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) AddMessage(ctx context.Context, sessionID string, msg models.Message) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.Ts == 0 {
		msg.Ts = m.now().Unix()
	}
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	return msg, nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	existing := m.messages[sessionID]
	out := make([]models.Message, len(existing))
	copy(out, existing)
	return out, nil
}
