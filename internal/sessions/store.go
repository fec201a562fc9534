// Package sessions implements the State Store: append-only conversation
// history keyed by session_id.
package sessions

import (
	"context"

	"github.com/haasonsaas/nexus/internal/models"
)

// Store is the contract the Agent Runtime depends on. Implementations
// must be safe to call concurrently from different goroutines on the
// same session; a reader started after a write completes observes it.
type Store interface {
	// AddMessage appends a message to sessionID's history, creating the
	// session lazily if it does not yet exist. If msg.MessageID or
	// msg.Ts are zero they are filled in.
	AddMessage(ctx context.Context, sessionID string, msg models.Message) (models.Message, error)

	// ListMessages returns sessionID's full history in insertion order.
	// An unknown session returns an empty slice, not an error — sessions
	// exist lazily from the store's point of view.
	ListMessages(ctx context.Context, sessionID string) ([]models.Message, error)
}
