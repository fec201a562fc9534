package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/bus"
	"github.com/haasonsaas/nexus/internal/models"
	"github.com/haasonsaas/nexus/internal/tasks"
)

func TestSchedulerFiresDueTaskAndDisablesExhaustedSchedule(t *testing.T) {
	store := tasks.NewMemoryStore()
	nextRun := int64(0)
	if _, err := store.Create(context.Background(), "water plants", "2024-01-01T00:00:00+00:00",
		map[string]any{"message": "water plants"}, &nextRun); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	b := bus.NewMemoryBus()
	var outputs []models.OutputText
	b.Subscribe(bus.TopicOutputText, func(ctx context.Context, msg any) error {
		outputs = append(outputs, msg.(models.OutputText))
		return nil
	})

	clock := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := New(store, b, "s1", WithNow(func() time.Time { return clock }))

	s.Tick(context.Background())

	if len(outputs) != 1 || outputs[0].Text != "Task due: water plants" {
		t.Fatalf("outputs = %+v, want one \"Task due: water plants\"", outputs)
	}

	list, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Enabled {
		t.Fatalf("task = %+v, want disabled after one-shot schedule exhausted", list[0])
	}

	// A second tick must not refire a disabled task.
	s.Tick(context.Background())
	if len(outputs) != 1 {
		t.Fatalf("outputs after second tick = %+v, want still exactly one", outputs)
	}
}

func TestSchedulerRecurringTaskReschedules(t *testing.T) {
	store := tasks.NewMemoryStore()
	nextRun := int64(0)
	if _, err := store.Create(context.Background(), "standup", "RRULE:FREQ=DAILY;INTERVAL=1", nil, &nextRun); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	b := bus.NewMemoryBus()
	var outputs []models.OutputText
	b.Subscribe(bus.TopicOutputText, func(ctx context.Context, msg any) error {
		outputs = append(outputs, msg.(models.OutputText))
		return nil
	})

	clock := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := New(store, b, "s1", WithNow(func() time.Time { return clock }))
	s.Tick(context.Background())

	if len(outputs) != 1 || outputs[0].Text != "Task due: standup" {
		t.Fatalf("outputs = %+v, want one \"Task due: standup\"", outputs)
	}

	list, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || !list[0].Enabled || list[0].NextRun == nil {
		t.Fatalf("task = %+v, want still enabled with a next_run set", list[0])
	}
}

func TestSchedulerStartStop(t *testing.T) {
	store := tasks.NewMemoryStore()
	b := bus.NewMemoryBus()
	s := New(store, b, "s1", WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	s.Stop()
}
