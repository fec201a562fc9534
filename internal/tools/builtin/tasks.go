package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/nexus/internal/models"
	"github.com/haasonsaas/nexus/internal/scheduler"
	"github.com/haasonsaas/nexus/internal/tasks"
	"github.com/haasonsaas/nexus/internal/tools/registry"
)

var tasksCreateSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"schedule": {"type": "string"},
		"payload": {"type": "object"}
	},
	"required": ["title", "schedule"]
}`)

var tasksSearchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"query": {"type": "string"}},
	"required": ["query"]
}`)

var tasksRunSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"task_id": {"type": "string"}},
	"required": ["task_id"]
}`)

// RegisterTasks registers tasks.create, tasks.search, and tasks.run
// against store. now supplies the reference time for computing a new
// task's first next_run.
func RegisterTasks(reg *registry.Registry, store tasks.Store, now func() int64) error {
	if err := reg.Register(models.ToolSpec{
		Name:        "tasks.create",
		Description: "Create a task",
		ArgsSchema:  tasksCreateSchema,
		Risk:        models.RiskConfirm,
		TimeoutMS:   2000,
		Caps:        []string{"tasks"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		title, _ := args["title"].(string)
		schedule, _ := args["schedule"].(string)
		payload, _ := args["payload"].(map[string]any)

		nextRun, err := scheduler.NextRunTS(schedule, now(), 0)
		if err != nil {
			return nil, fmt.Errorf("tasks.create: %w", err)
		}
		t, err := store.Create(ctx, title, schedule, payload, nextRun)
		if err != nil {
			return nil, fmt.Errorf("tasks.create: %w", err)
		}
		return t.ID, nil
	}); err != nil {
		return err
	}

	if err := reg.Register(models.ToolSpec{
		Name:        "tasks.search",
		Description: "Search tasks",
		ArgsSchema:  tasksSearchSchema,
		Risk:        models.RiskSafe,
		TimeoutMS:   2000,
		Caps:        []string{"tasks"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		query, _ := args["query"].(string)
		all, err := store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("tasks.search: %w", err)
		}
		q := strings.ToLower(query)
		var out []map[string]any
		for _, t := range all {
			if q == "" || strings.Contains(strings.ToLower(t.Title), q) {
				out = append(out, map[string]any{"id": t.ID, "title": t.Title, "schedule": t.Schedule})
			}
		}
		return out, nil
	}); err != nil {
		return err
	}

	return reg.Register(models.ToolSpec{
		Name:        "tasks.run",
		Description: "Run a task by id",
		ArgsSchema:  tasksRunSchema,
		Risk:        models.RiskSafe,
		TimeoutMS:   10000,
		Caps:        []string{"tasks"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		taskID, _ := args["task_id"].(string)
		t, err := store.Get(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("tasks.run: %w", err)
		}
		nowTS := now()
		nextRun, err := scheduler.NextRunTS(t.Schedule, nowTS, t.RunCount+1)
		if err != nil {
			return nil, fmt.Errorf("tasks.run: %w", err)
		}
		if nextRun == nil {
			if err := store.Disable(ctx, t.ID); err != nil {
				return nil, fmt.Errorf("tasks.run: %w", err)
			}
		}
		if err := store.UpdateRun(ctx, t.ID, nowTS, nextRun); err != nil {
			return nil, fmt.Errorf("tasks.run: %w", err)
		}
		return map[string]any{"ok": "true"}, nil
	})
}
