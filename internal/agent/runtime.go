// Package agent implements the Agent Runtime: the tool-using turn loop
// that sits between the Event Bus, the State Store, the Tool Gateway,
// and an LLM Client.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/bus"
	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/internal/models"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/internal/tools/gateway"
	"github.com/haasonsaas/nexus/internal/tools/registry"
)

const (
	defaultMaxToolSteps  = 3
	defaultHistoryWindow = 40
)

const defaultSystemPrompt = "You are a local assistant with access to a set of tools. " +
	"Call a tool only when it helps answer the request; otherwise respond directly."

// Runtime is the per-process state machine driving one or more sessions
// through the turn loop. It holds a single PendingConfirmation slot
// (frozen per the source behavior this core was modeled on), so at most
// one tool confirmation may be outstanding across all sessions at once.
type Runtime struct {
	bus       bus.Bus
	store     sessions.Store
	registry  *registry.Registry
	gateway   *gateway.Gateway
	llmClient llm.Client

	systemPrompt  string
	maxToolSteps  int
	historyWindow int
	now           func() time.Time
	logger        *slog.Logger

	mu      sync.Mutex
	pending *models.PendingConfirmation
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLLMClient attaches the LLM client. A Runtime with no LLM client
// runs in echo mode: every input.text gets a trivial "Received: <text>"
// reply and no tool loop ever starts.
func WithLLMClient(c llm.Client) Option {
	return func(r *Runtime) { r.llmClient = c }
}

// WithSystemPrompt overrides the system+tool-instruction prompt prepended
// to every LLM call.
func WithSystemPrompt(prompt string) Option {
	return func(r *Runtime) {
		if prompt != "" {
			r.systemPrompt = prompt
		}
	}
}

// WithMaxToolSteps overrides the tool-loop step bound (default 3).
func WithMaxToolSteps(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.maxToolSteps = n
		}
	}
}

// WithHistoryWindow overrides K, the number of trailing history messages
// folded into a freshly assembled prompt (default 40).
func WithHistoryWindow(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.historyWindow = n
		}
	}
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(r *Runtime) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger overrides the runtime's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New constructs a Runtime over b, store, reg, and gw.
func New(b bus.Bus, store sessions.Store, reg *registry.Registry, gw *gateway.Gateway, opts ...Option) *Runtime {
	r := &Runtime{
		bus:           b,
		store:         store,
		registry:      reg,
		gateway:       gw,
		systemPrompt:  defaultSystemPrompt,
		maxToolSteps:  defaultMaxToolSteps,
		historyWindow: defaultHistoryWindow,
		now:           time.Now,
		logger:        slog.Default().With("component", "agent"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start subscribes the runtime to input.text and returns the
// subscription so the caller can tear it down.
func (r *Runtime) Start() bus.Subscription {
	return r.bus.Subscribe(bus.TopicInputText, r.handleInputText)
}

func (r *Runtime) handleInputText(ctx context.Context, msg any) error {
	in, ok := msg.(models.InputText)
	if !ok {
		return fmt.Errorf("agent: unexpected input.text payload type %T", msg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending != nil {
		return r.handleConfirmResponse(ctx, in)
	}
	return r.handleIdleTurn(ctx, in)
}

// handleIdleTurn implements spec.md §4.8's IDLE-state flow.
func (r *Runtime) handleIdleTurn(ctx context.Context, in models.InputText) error {
	r.persistUser(ctx, in.SessionID, in.Text)

	if r.llmClient == nil {
		text := "Received: " + in.Text
		r.persistAssistant(ctx, in.SessionID, text)
		r.publishOutput(ctx, in.SessionID, text)
		return nil
	}

	history, err := r.store.ListMessages(ctx, in.SessionID)
	if err != nil {
		return fmt.Errorf("agent: list messages: %w", err)
	}
	prompt := historyToPrompt(trimToWindow(history, r.historyWindow))

	return r.runToolLoop(ctx, in.SessionID, prompt)
}

// handleConfirmResponse implements spec.md §4.8's AWAITING_CONFIRM flow.
func (r *Runtime) handleConfirmResponse(ctx context.Context, in models.InputText) error {
	normalized := strings.ToLower(strings.TrimSpace(in.Text))
	switch normalized {
	case "y", "yes":
		pc := r.pending
		r.pending = nil

		call := models.ToolCall{
			SessionID:       pc.SessionID,
			CallID:          gateway.NewCallID(),
			ToolName:        pc.ToolCall.ToolName,
			Args:            pc.ToolCall.Args,
			RequiresConfirm: false,
		}
		result, execErr := r.gateway.Execute(ctx, call)
		content := toolResultContent(result, execErr)
		r.persistTool(ctx, pc.SessionID, content)

		prompt := append(pc.SnapshottedPrompt, models.PromptMessage{
			Role:       "tool",
			Content:    content,
			ToolCallID: pc.LLMToolCallID,
		})
		return r.runToolLoop(ctx, pc.SessionID, prompt)

	case "n", "no":
		r.pending = nil
		r.publishOutput(ctx, in.SessionID, "Cancelled tool call.")
		return nil

	default:
		r.publishOutput(ctx, in.SessionID, "Confirm with yes/no.")
		return nil
	}
}

// runToolLoop implements steps 4-7 of spec.md §4.8: call the LLM, act on
// its response, and loop until a final answer, a confirmation request,
// or max_tool_steps is exceeded.
func (r *Runtime) runToolLoop(ctx context.Context, sessionID string, prompt []models.PromptMessage) error {
	toolSpecs := r.toolSpecs()

	for step := 0; step < r.maxToolSteps; step++ {
		resp, err := r.llmClient.Complete(ctx, r.systemPrompt, promptToLLMMessages(prompt), toolSpecs)
		if err != nil {
			r.publishOutput(ctx, sessionID, fmt.Sprintf("LLM error: %s", err))
			return nil
		}

		if len(resp.ToolCalls) == 0 {
			r.persistAssistant(ctx, sessionID, resp.Content)
			r.publishOutput(ctx, sessionID, resp.Content)
			return nil
		}

		r.persistAssistant(ctx, sessionID, resp.Content)
		prompt = append(prompt, models.PromptMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: rawToolCallsFromResponse(resp.ToolCalls),
		})

		for _, tc := range resp.ToolCalls {
			spec, specErr := r.registry.Get(tc.Name)
			requiresConfirm := specErr == nil && spec.Risk != models.RiskSafe

			call := models.ToolCall{
				SessionID:       sessionID,
				CallID:          gateway.NewCallID(),
				ToolName:        tc.Name,
				Args:            tc.Arguments,
				RequiresConfirm: requiresConfirm,
			}
			result, execErr := r.gateway.Execute(ctx, call)

			var confirmErr *gateway.ConfirmationRequired
			if errors.As(execErr, &confirmErr) {
				if r.pending != nil {
					return fmt.Errorf("agent: confirmation already pending")
				}
				snapshot := make([]models.PromptMessage, len(prompt))
				copy(snapshot, prompt)
				r.pending = &models.PendingConfirmation{
					SessionID:         sessionID,
					ToolCall:          call,
					LLMToolCallID:     tc.ID,
					SnapshottedPrompt: snapshot,
				}
				r.publishOutput(ctx, sessionID, fmt.Sprintf("Confirm tool call %s? (yes/no)", tc.Name))
				return nil
			}

			content := toolResultContent(result, execErr)
			r.persistTool(ctx, sessionID, content)
			prompt = append(prompt, models.PromptMessage{
				Role:       "tool",
				Content:    content,
				ToolCallID: tc.ID,
			})
		}
	}

	r.publishOutput(ctx, sessionID, "Tool loop exceeded max steps.")
	return nil
}

func (r *Runtime) toolSpecs() []llm.ToolSpec {
	specs := r.registry.ListSpecs()
	out := make([]llm.ToolSpec, len(specs))
	for i, s := range specs {
		out[i] = llm.ToolSpec{Name: s.Name, Description: s.Description, ArgsSchema: s.ArgsSchema}
	}
	return out
}

func (r *Runtime) publishOutput(ctx context.Context, sessionID, text string) {
	out := models.OutputText{
		SessionID: sessionID,
		MessageID: uuid.NewString(),
		Ts:        r.now().Unix(),
		Text:      text,
	}
	if err := r.bus.Publish(ctx, bus.TopicOutputText, out); err != nil {
		r.logger.Warn("publish output.text failed", "session_id", sessionID, "error", err)
	}
}

func (r *Runtime) persistUser(ctx context.Context, sessionID, content string) {
	r.persist(ctx, sessionID, models.RoleUser, content)
}

func (r *Runtime) persistAssistant(ctx context.Context, sessionID, content string) {
	r.persist(ctx, sessionID, models.RoleAssistant, content)
}

func (r *Runtime) persistTool(ctx context.Context, sessionID, content string) {
	r.persist(ctx, sessionID, models.RoleTool, content)
}

func (r *Runtime) persist(ctx context.Context, sessionID string, role models.Role, content string) {
	if _, err := r.store.AddMessage(ctx, sessionID, models.Message{Role: role, Content: content}); err != nil {
		r.logger.Error("persist message failed", "session_id", sessionID, "role", role, "error", err)
	}
}

func trimToWindow(history []models.Message, k int) []models.Message {
	if len(history) <= k {
		return history
	}
	return history[len(history)-k:]
}

func historyToPrompt(history []models.Message) []models.PromptMessage {
	out := make([]models.PromptMessage, len(history))
	for i, m := range history {
		out[i] = models.PromptMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func promptToLLMMessages(prompt []models.PromptMessage) []llm.Message {
	out := make([]llm.Message, len(prompt))
	for i, pm := range prompt {
		lm := llm.Message{Role: pm.Role, Content: pm.Content, ToolCallID: pm.ToolCallID}
		if len(pm.ToolCalls) > 0 {
			lm.ToolCalls = make([]llm.ToolCall, len(pm.ToolCalls))
			for j, rtc := range pm.ToolCalls {
				lm.ToolCalls[j] = llm.ToolCall{ID: rtc.ID, Name: rtc.Name, Arguments: decodeRawArguments(rtc.Arguments)}
			}
		}
		out[i] = lm
	}
	return out
}

func rawToolCallsFromResponse(tcs []llm.ToolCall) []models.RawToolCall {
	out := make([]models.RawToolCall, len(tcs))
	for i, tc := range tcs {
		b, _ := json.Marshal(tc.Arguments)
		out[i] = models.RawToolCall{ID: tc.ID, Name: tc.Name, Arguments: string(b)}
	}
	return out
}

func decodeRawArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}

// toolResultContent renders a tool invocation outcome as the JSON string
// persisted on the tool-role message and echoed into the working
// prompt: the JSON of result.data on success, or {"error": …} otherwise.
func toolResultContent(result models.ToolResult, execErr error) string {
	if execErr != nil {
		b, _ := json.Marshal(map[string]string{"error": execErr.Error()})
		return string(b)
	}
	if !result.OK {
		b, _ := json.Marshal(map[string]string{"error": result.Error})
		return string(b)
	}
	var data any
	if result.Result != nil {
		data = result.Result["data"]
	}
	b, _ := json.Marshal(data)
	return string(b)
}
