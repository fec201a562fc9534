package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus/internal/bus"
	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/internal/models"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/internal/tools/gateway"
	"github.com/haasonsaas/nexus/internal/tools/policy"
	"github.com/haasonsaas/nexus/internal/tools/registry"
)

type fakeLLM struct {
	responses []llm.Response
	calls      int
}

func (f *fakeLLM) Complete(ctx context.Context, system string, messages []llm.Message, tools []llm.ToolSpec) (llm.Response, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		return llm.Response{}, nil
	}
	return f.responses[idx], nil
}

type harness struct {
	b       *bus.MemoryBus
	store   *sessions.MemoryStore
	reg     *registry.Registry
	gw      *gateway.Gateway
	rt      *Runtime
	outputs []models.OutputText
}

func newHarness(t *testing.T, llmClient llm.Client, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		b:     bus.NewMemoryBus(),
		store: sessions.NewMemoryStore(),
		reg:   registry.New(),
	}
	h.gw = gateway.New(h.reg, policy.New(nil, nil), gateway.NewMemoryAuditSink())

	allOpts := append([]Option{}, opts...)
	if llmClient != nil {
		allOpts = append(allOpts, WithLLMClient(llmClient))
	}
	h.rt = New(h.b, h.store, h.reg, h.gw, allOpts...)
	h.b.Subscribe(bus.TopicOutputText, func(ctx context.Context, msg any) error {
		h.outputs = append(h.outputs, msg.(models.OutputText))
		return nil
	})
	h.rt.Start()
	return h
}

func (h *harness) send(t *testing.T, sessionID, text string) {
	t.Helper()
	if err := h.b.Publish(context.Background(), bus.TopicInputText, models.InputText{
		SessionID: sessionID,
		Text:      text,
	}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
}

func TestScenarioNoToolReply(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, "s1", "hi")

	if len(h.outputs) != 1 || h.outputs[0].Text != "Received: hi" {
		t.Fatalf("outputs = %+v, want one \"Received: hi\"", h.outputs)
	}
	history, err := h.store.ListMessages(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(history) != 2 || history[0].Role != models.RoleUser || history[0].Content != "hi" ||
		history[1].Role != models.RoleAssistant || history[1].Content != "Received: hi" {
		t.Fatalf("history = %+v, want [user:hi assistant:Received: hi]", history)
	}
}

func TestScenarioOneSafeToolStep(t *testing.T) {
	fl := &fakeLLM{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "web.search", Arguments: map[string]any{"query": "x"}}}},
		{Content: "Found 1."},
	}}
	h := newHarness(t, fl)
	called := false
	_ = h.reg.Register(models.ToolSpec{Name: "web.search", Risk: models.RiskSafe}, func(ctx context.Context, args map[string]any) (any, error) {
		called = true
		return []map[string]any{{"title": "T", "url": "u", "snippet": "s"}}, nil
	})

	h.send(t, "s1", "search please")

	if !called {
		t.Fatal("web.search handler never invoked")
	}
	if len(h.outputs) != 1 || h.outputs[0].Text != "Found 1." {
		t.Fatalf("outputs = %+v, want exactly one \"Found 1.\"", h.outputs)
	}

	history, err := h.store.ListMessages(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4: %+v", len(history), history)
	}
	if history[0].Role != models.RoleUser || history[0].Content != "search please" {
		t.Fatalf("history[0] = %+v", history[0])
	}
	if history[1].Role != models.RoleAssistant || history[1].Content != "" {
		t.Fatalf("history[1] = %+v, want empty-content assistant", history[1])
	}
	if history[2].Role != models.RoleTool {
		t.Fatalf("history[2] = %+v, want tool role", history[2])
	}
	var toolData []map[string]any
	if err := json.Unmarshal([]byte(history[2].Content), &toolData); err != nil {
		t.Fatalf("tool message content not valid JSON: %v", err)
	}
	if len(toolData) != 1 || toolData[0]["title"] != "T" {
		t.Fatalf("tool message content = %+v", toolData)
	}
	if history[3].Role != models.RoleAssistant || history[3].Content != "Found 1." {
		t.Fatalf("history[3] = %+v", history[3])
	}
}

func TestScenarioConfirmFlowAcceptCancelAndUnclear(t *testing.T) {
	fl := &fakeLLM{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "fs.write", Arguments: map[string]any{"path": "x"}}}},
		{Content: "Done."},
	}}
	h := newHarness(t, fl)
	called := false
	_ = h.reg.Register(models.ToolSpec{Name: "fs.write", Risk: models.RiskConfirm}, func(ctx context.Context, args map[string]any) (any, error) {
		called = true
		return "wrote", nil
	})

	h.send(t, "s1", "please write")
	if len(h.outputs) != 1 || h.outputs[0].Text != "Confirm tool call fs.write? (yes/no)" {
		t.Fatalf("outputs = %+v, want confirm prompt", h.outputs)
	}
	if h.rt.pending == nil {
		t.Fatal("expected pending confirmation after confirm-risk tool call")
	}
	if called {
		t.Fatal("handler ran before confirmation")
	}

	// Scenario 5: unclear input leaves AWAITING_CONFIRM unchanged.
	h.send(t, "s1", "maybe")
	if len(h.outputs) != 2 || h.outputs[1].Text != "Confirm with yes/no." {
		t.Fatalf("outputs[1] = %+v, want re-prompt", h.outputs[1])
	}
	if h.rt.pending == nil {
		t.Fatal("pending confirmation cleared by unclear input")
	}

	// Scenario 3: yes proceeds.
	h.send(t, "s1", "yes")
	if !called {
		t.Fatal("handler never ran after confirmation")
	}
	if h.rt.pending != nil {
		t.Fatal("pending confirmation not cleared after yes")
	}
	if len(h.outputs) != 3 || h.outputs[2].Text != "Done." {
		t.Fatalf("outputs[2] = %+v, want final assistant reply", h.outputs[2])
	}
}

func TestScenarioConfirmFlowCancel(t *testing.T) {
	fl := &fakeLLM{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "fs.write", Arguments: map[string]any{"path": "x"}}}},
	}}
	h := newHarness(t, fl)
	called := false
	_ = h.reg.Register(models.ToolSpec{Name: "fs.write", Risk: models.RiskConfirm}, func(ctx context.Context, args map[string]any) (any, error) {
		called = true
		return "wrote", nil
	})

	h.send(t, "s1", "please write")
	h.send(t, "s1", "no")

	if called {
		t.Fatal("handler ran despite cancellation")
	}
	if h.rt.pending != nil {
		t.Fatal("pending confirmation not cleared after no")
	}
	if len(h.outputs) != 2 || h.outputs[1].Text != "Cancelled tool call." {
		t.Fatalf("outputs = %+v, want cancellation message", h.outputs)
	}
}

func TestScenarioToolLoopCap(t *testing.T) {
	fl := &fakeLLM{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "echo.tool", Arguments: map[string]any{}}}},
		{ToolCalls: []llm.ToolCall{{ID: "c2", Name: "echo.tool", Arguments: map[string]any{}}}},
		{ToolCalls: []llm.ToolCall{{ID: "c3", Name: "echo.tool", Arguments: map[string]any{}}}},
	}}
	h := newHarness(t, fl, WithMaxToolSteps(3))
	calls := 0
	_ = h.reg.Register(models.ToolSpec{Name: "echo.tool", Risk: models.RiskSafe}, func(ctx context.Context, args map[string]any) (any, error) {
		calls++
		return "ok", nil
	})

	h.send(t, "s1", "loop forever")

	if calls != 3 {
		t.Fatalf("tool invoked %d times, want 3", calls)
	}
	if len(h.outputs) != 1 || h.outputs[0].Text != "Tool loop exceeded max steps." {
		t.Fatalf("outputs = %+v, want loop-cap message", h.outputs)
	}

	history, err := h.store.ListMessages(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	toolMessages := 0
	for _, m := range history {
		if m.Role == models.RoleTool {
			toolMessages++
		}
	}
	if toolMessages != 3 {
		t.Fatalf("persisted %d tool results, want 3", toolMessages)
	}
}
