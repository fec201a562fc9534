// Package llm implements the LLM Client: a synchronous, provider-agnostic
// request/response boundary over the chat completion APIs the agent
// runtime drives. Unlike the streaming providers this module's teacher
// shipped, the agent runtime here issues one request and waits for one
// structured response — tool calls included — before deciding what to
// do next.
package llm

import (
	"context"
	"encoding/json"
)

// Message is one role-tagged turn in the prompt sent to the model.
type Message struct {
	Role       string     // "user", "assistant", "tool", "system"
	Content    string     // empty on a pure tool-call assistant turn; tool-role turns carry the result JSON
	ToolCallID string     // set on tool-role messages: which call this answers
	ToolCalls  []ToolCall // set on assistant-role messages that invoked tools
}

// ToolCall is one invocation the model requested in a prior turn.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolSpec describes a tool the model may call, rendered into whatever
// shape the active provider's function-calling API expects.
type ToolSpec struct {
	Name        string
	Description string
	ArgsSchema  json.RawMessage
}

// Response is the model's reply to one Complete call.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Client is the synchronous boundary the agent runtime depends on. Each
// Complete call is one request and one response — no streaming, no
// server-sent events, no partial chunks.
type Client interface {
	Complete(ctx context.Context, system string, messages []Message, tools []ToolSpec) (Response, error)
}

// defaultTemperature keeps responses close to deterministic without
// pinning them to greedy decoding; both providers accept float64.
const defaultTemperature = 0.2

// parseArguments decodes a provider's JSON-string tool arguments into a
// map. A malformed payload yields an empty map rather than an error, so
// a single bad tool call doesn't sink the whole turn — the tool gateway
// still sees requires_confirm/policy checks and can fail the call on
// its own terms.
func parseArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}
