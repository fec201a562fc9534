package tasks

import (
	"context"
	"testing"
)

func ptr(n int64) *int64 { return &n }

func TestMemoryStoreCreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	task, err := s.Create(context.Background(), "water plants", "RRULE:FREQ=DAILY", map[string]any{"message": "water plants"}, ptr(100))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if task.ID == "" {
		t.Fatal("Create() returned empty ID")
	}

	got, err := s.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "water plants" || !got.Enabled {
		t.Fatalf("Get() = %+v", got)
	}
}

func TestMemoryStoreGetUnknownReturnsErrNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreDueTasks(t *testing.T) {
	s := NewMemoryStore()
	due, _ := s.Create(context.Background(), "due", "2024-01-01T00:00:00Z", nil, ptr(100))
	_, _ = s.Create(context.Background(), "future", "2025-01-01T00:00:00Z", nil, ptr(200))
	notYet, _ := s.Create(context.Background(), "notyet", "2024-01-01T00:00:00Z", nil, nil)
	_ = notYet

	tasks, err := s.DueTasks(context.Background(), 150)
	if err != nil {
		t.Fatalf("DueTasks() error = %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != due.ID {
		t.Fatalf("DueTasks() = %+v, want only %q", tasks, due.ID)
	}
}

func TestMemoryStoreDisableExcludesFromDueTasks(t *testing.T) {
	s := NewMemoryStore()
	task, _ := s.Create(context.Background(), "t", "2024-01-01T00:00:00Z", nil, ptr(100))

	if err := s.Disable(context.Background(), task.ID); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	due, err := s.DueTasks(context.Background(), 200)
	if err != nil {
		t.Fatalf("DueTasks() error = %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("DueTasks() after disable = %+v, want empty", due)
	}
}

func TestMemoryStoreUpdateRun(t *testing.T) {
	s := NewMemoryStore()
	task, _ := s.Create(context.Background(), "t", "2024-01-01T00:00:00Z", nil, ptr(100))

	if err := s.UpdateRun(context.Background(), task.ID, 100, ptr(200)); err != nil {
		t.Fatalf("UpdateRun() error = %v", err)
	}
	got, err := s.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LastRun == nil || *got.LastRun != 100 {
		t.Fatalf("LastRun = %v, want 100", got.LastRun)
	}
	if got.NextRun == nil || *got.NextRun != 200 {
		t.Fatalf("NextRun = %v, want 200", got.NextRun)
	}
}

func TestMemoryStoreList(t *testing.T) {
	s := NewMemoryStore()
	_, _ = s.Create(context.Background(), "a", "2024-01-01T00:00:00Z", nil, nil)
	_, _ = s.Create(context.Background(), "b", "2024-01-01T00:00:00Z", nil, nil)

	list, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() = %+v, want 2 entries", list)
	}
}
