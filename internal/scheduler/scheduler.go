package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/bus"
	"github.com/haasonsaas/nexus/internal/models"
	"github.com/haasonsaas/nexus/internal/tasks"
)

const defaultInterval = 30 * time.Second

// Scheduler polls the Task store on a fixed interval and fires due tasks
// onto the output.text topic.
type Scheduler struct {
	store     tasks.Store
	bus       bus.Bus
	sessionID string
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval overrides the default 30 second tick interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New builds a Scheduler that publishes due-task notifications for
// sessionID.
func New(store tasks.Store, b bus.Bus, sessionID string, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     store,
		bus:       b,
		sessionID: sessionID,
		interval:  defaultInterval,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the tick loop in a background goroutine. Call Stop to end it.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop ends the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Tick runs one due-task pass synchronously. Exported so tests can drive
// it without waiting on the ticker.
func (s *Scheduler) Tick(ctx context.Context) {
	s.tick(ctx)
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now().Unix()
	due, err := s.store.DueTasks(ctx, now)
	if err != nil {
		s.logger.Error("scheduler: load due tasks", "error", err)
		return
	}
	for _, task := range due {
		s.fire(ctx, task)
		s.markRun(ctx, task, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, task models.Task) {
	message := task.Title
	if task.Payload != nil {
		if m, ok := task.Payload["message"].(string); ok && m != "" {
			message = m
		}
	}
	out := models.OutputText{
		SessionID: s.sessionID,
		MessageID: uuid.NewString(),
		Ts:        s.now().Unix(),
		Text:      "Task due: " + message,
	}
	if err := s.bus.Publish(ctx, bus.TopicOutputText, out); err != nil {
		s.logger.Error("scheduler: publish task due", "task_id", task.ID, "error", err)
	}
}

func (s *Scheduler) markRun(ctx context.Context, task models.Task, lastRun int64) {
	next, err := NextRunTS(task.Schedule, lastRun, task.RunCount+1)
	if err != nil {
		s.logger.Error("scheduler: compute next run", "task_id", task.ID, "error", err)
		if err := s.store.Disable(ctx, task.ID); err != nil {
			s.logger.Error("scheduler: disable task", "task_id", task.ID, "error", err)
		}
		return
	}
	if next == nil {
		if err := s.store.Disable(ctx, task.ID); err != nil {
			s.logger.Error("scheduler: disable task", "task_id", task.ID, "error", err)
		}
		if err := s.store.UpdateRun(ctx, task.ID, lastRun, nil); err != nil {
			s.logger.Error("scheduler: update task run", "task_id", task.ID, "error", err)
		}
		return
	}
	if err := s.store.UpdateRun(ctx, task.ID, lastRun, next); err != nil {
		s.logger.Error("scheduler: update task run", "task_id", task.ID, "error", err)
	}
}
