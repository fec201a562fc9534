// Package gateway implements the Tool Gateway: the component that wraps
// every tool handler call with policy evaluation, schema validation, a
// hard timeout, and audit logging.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/nexus/internal/models"
	"github.com/haasonsaas/nexus/internal/redact"
	"github.com/haasonsaas/nexus/internal/tools/policy"
	"github.com/haasonsaas/nexus/internal/tools/registry"
)

// ConfirmationRequired is raised (returned) when a confirm-risk tool is
// invoked with requires_confirm=true. It carries no side effects — the
// handler is never called. Mirrors the original implementation's
// ConfirmationRequired exception.
type ConfirmationRequired struct {
	ToolName string
	Reason   string
}

func (e *ConfirmationRequired) Error() string {
	return fmt.Sprintf("confirmation required for %s: %s", e.ToolName, e.Reason)
}

// AuditSink receives a ToolCallLog after every invocation of a registered
// tool, including policy denials (a ConfirmationRequired raise records no
// call).
// Implementations must not block the caller noticeably; Gateway invokes
// Write on a separate goroutine and ignores its error except to log it.
type AuditSink interface {
	Write(ctx context.Context, entry models.ToolCallLog) error
}

// Gateway is the single entry point tool invocations flow through.
type Gateway struct {
	registry *registry.Registry
	policy   *policy.Policy
	sink     AuditSink
	logger   *slog.Logger
	now      func() time.Time

	metrics *Metrics

	schemaMu    sync.Mutex
	schemaCache map[string]*jsonschema.Schema
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger overrides the gateway's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) {
		if m != nil {
			g.metrics = m
		}
	}
}

// New constructs a Gateway over reg, pol, and sink.
func New(reg *registry.Registry, pol *policy.Policy, sink AuditSink, opts ...Option) *Gateway {
	g := &Gateway{
		registry:    reg,
		policy:      pol,
		sink:        sink,
		logger:      slog.Default().With("component", "gateway"),
		now:         time.Now,
		schemaCache: make(map[string]*jsonschema.Schema),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Execute runs the full tool-invocation contract (spec.md §4.5) for call.
// It never panics on handler errors; an unknown tool name returns an error
// wrapping registry.ErrNotRegistered, and every other failure mode becomes
// either a ToolResult{ok:false} or a *ConfirmationRequired error.
func (g *Gateway) Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	spec, err := g.registry.Get(call.ToolName)
	if err != nil {
		if g.metrics != nil {
			g.metrics.ObserveCall(call.ToolName, "not_registered", 0)
		}
		return models.ToolResult{}, fmt.Errorf("tool %s: %w", call.ToolName, registry.ErrNotRegistered)
	}

	verdict := g.policy.Evaluate(spec.Name, spec.Risk)
	switch verdict.Decision {
	case policy.Deny:
		if g.metrics != nil {
			g.metrics.ObserveCall(call.ToolName, "denied", 0)
		}
		result := models.ToolResult{CallID: call.CallID, OK: false, Error: verdict.Reason}
		g.logAsync(ctx, call, result)
		return result, nil
	case policy.Confirm:
		if call.RequiresConfirm {
			return models.ToolResult{}, &ConfirmationRequired{ToolName: spec.Name, Reason: verdict.Reason}
		}
	}

	if err := g.validateArgs(spec, call.Args); err != nil {
		if g.metrics != nil {
			g.metrics.ObserveCall(call.ToolName, "invalid_args", 0)
		}
		result := models.ToolResult{CallID: call.CallID, OK: false, Error: err.Error()}
		g.logAsync(ctx, call, result)
		return result, nil
	}

	handler, err := g.registry.Handler(spec.Name)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("tool %s: %w", spec.Name, registry.ErrNotRegistered)
	}

	result := g.invoke(ctx, spec, call, handler)
	g.logAsync(ctx, call, result)
	if g.metrics != nil {
		status := "ok"
		if !result.OK {
			status = "error"
		}
		g.metrics.ObserveCall(call.ToolName, status, time.Duration(result.ElapsedMS)*time.Millisecond)
	}
	return result, nil
}

func (g *Gateway) invoke(ctx context.Context, spec models.ToolSpec, call models.ToolCall, handler registry.Handler) models.ToolResult {
	timeout := time.Duration(spec.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	start := g.now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		value, err := handler(callCtx, call.Args)
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-callCtx.Done():
		elapsed := g.now().Sub(start)
		return models.ToolResult{CallID: call.CallID, OK: false, Error: "timeout", ElapsedMS: elapsed.Milliseconds()}
	case out := <-done:
		elapsed := g.now().Sub(start)
		if out.err != nil {
			return models.ToolResult{CallID: call.CallID, OK: false, Error: out.err.Error(), ElapsedMS: elapsed.Milliseconds()}
		}
		return models.ToolResult{
			CallID:    call.CallID,
			OK:        true,
			Result:    map[string]any{"data": out.value},
			ElapsedMS: elapsed.Milliseconds(),
		}
	}
}

func (g *Gateway) validateArgs(spec models.ToolSpec, args map[string]any) error {
	if len(spec.ArgsSchema) == 0 {
		return nil
	}
	schema, err := g.compileSchema(spec.Name, spec.ArgsSchema)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("invalid args: %w", err)
	}
	return nil
}

func (g *Gateway) compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	g.schemaMu.Lock()
	defer g.schemaMu.Unlock()

	if cached, ok := g.schemaCache[name]; ok {
		return cached, nil
	}
	compiler := jsonschema.NewCompiler()
	resourceName := name + ".schema.json"
	if err := compiler.AddResource(resourceName, strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, err
	}
	g.schemaCache[name] = schema
	return schema, nil
}

// logAsync writes a redacted ToolCallLog on a separate goroutine,
// fire-and-forget relative to the caller; a sink failure is logged with
// slog.Warn and never changes the returned ToolResult (frozen Open
// Question (c)).
func (g *Gateway) logAsync(ctx context.Context, call models.ToolCall, result models.ToolResult) {
	if g.sink == nil {
		return
	}
	entry := models.ToolCallLog{
		CallID:    call.CallID,
		SessionID: call.SessionID,
		ToolName:  call.ToolName,
		Args:      redact.Value(call.Args).(map[string]any),
		OK:        result.OK,
		ElapsedMS: result.ElapsedMS,
		Ts:        g.now().Unix(),
	}
	if result.Result != nil {
		entry.Result = redact.Value(result.Result).(map[string]any)
	} else if result.Error != "" {
		entry.Result = map[string]any{"error": redact.String(result.Error)}
	}

	go func() {
		bgCtx := context.WithoutCancel(ctx)
		if err := g.sink.Write(bgCtx, entry); err != nil {
			g.logger.Warn("tool audit log write failed", "component", "gateway", "call_id", entry.CallID, "error", err)
		}
	}()
}

// NewCallID returns a process-unique call identifier.
func NewCallID() string {
	return uuid.NewString()
}
