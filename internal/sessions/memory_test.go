package sessions

import (
	"context"
	"testing"

	"github.com/haasonsaas/nexus/internal/models"
)

func TestMemoryStoreHistoryMonotonicity(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i, content := range []string{"hi", "there", "friend"} {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		if _, err := store.AddMessage(ctx, "s1", models.Message{Role: role, Content: content}); err != nil {
			t.Fatalf("AddMessage() error = %v", err)
		}
	}

	history, err := store.ListMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d messages, want 3", len(history))
	}
	want := []string{"hi", "there", "friend"}
	for i, w := range want {
		if history[i].Content != w {
			t.Fatalf("message %d = %q, want %q", i, history[i].Content, w)
		}
	}
}

func TestMemoryStoreUnknownSessionIsEmpty(t *testing.T) {
	store := NewMemoryStore()
	history, err := store.ListMessages(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("got %d messages for unknown session, want 0", len(history))
	}
}

func TestMemoryStoreAssignsIDAndTimestamp(t *testing.T) {
	store := NewMemoryStore()
	msg, err := store.AddMessage(context.Background(), "s1", models.Message{Role: models.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	if msg.MessageID == "" {
		t.Fatal("expected message id to be assigned")
	}
	if msg.Ts == 0 {
		t.Fatal("expected ts to be assigned")
	}
}

func TestMemoryStoreSessionsIndependent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.AddMessage(ctx, "s1", models.Message{Role: models.RoleUser, Content: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddMessage(ctx, "s2", models.Message{Role: models.RoleUser, Content: "b"}); err != nil {
		t.Fatal(err)
	}
	h1, _ := store.ListMessages(ctx, "s1")
	h2, _ := store.ListMessages(ctx, "s2")
	if len(h1) != 1 || len(h2) != 1 {
		t.Fatalf("sessions interfered: s1=%d s2=%d", len(h1), len(h2))
	}
}
