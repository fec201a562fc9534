package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/models"
	"github.com/haasonsaas/nexus/internal/tools/policy"
	"github.com/haasonsaas/nexus/internal/tools/registry"
)

func newTestGateway(t *testing.T, denyList, confirmList []string) (*Gateway, *registry.Registry, *MemoryAuditSink) {
	t.Helper()
	reg := registry.New()
	pol := policy.New(denyList, confirmList)
	sink := NewMemoryAuditSink()
	gw := New(reg, pol, sink)
	return gw, reg, sink
}

func TestGatewayUnknownToolFails(t *testing.T) {
	gw, _, _ := newTestGateway(t, nil, nil)
	_, err := gw.Execute(context.Background(), models.ToolCall{ToolName: "nope"})
	if !errors.Is(err, registry.ErrNotRegistered) {
		t.Fatalf("Execute() error = %v, want ErrNotRegistered", err)
	}
}

func TestGatewayDenyReturnsFailedResult(t *testing.T) {
	gw, reg, _ := newTestGateway(t, nil, nil)
	_ = reg.Register(models.ToolSpec{Name: "danger.tool", Risk: models.RiskDangerous}, func(ctx context.Context, args map[string]any) (any, error) {
		return "should not run", nil
	})
	result, err := gw.Execute(context.Background(), models.ToolCall{ToolName: "danger.tool"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.OK {
		t.Fatal("expected ok=false for denied tool")
	}
}

func TestGatewayConfirmRaisesConfirmationRequired(t *testing.T) {
	gw, reg, _ := newTestGateway(t, nil, nil)
	_ = reg.Register(models.ToolSpec{Name: "fs.write", Risk: models.RiskConfirm}, func(ctx context.Context, args map[string]any) (any, error) {
		t.Fatal("handler must not run before confirmation")
		return nil, nil
	})
	_, err := gw.Execute(context.Background(), models.ToolCall{ToolName: "fs.write", RequiresConfirm: true})
	var confirmErr *ConfirmationRequired
	if !errors.As(err, &confirmErr) {
		t.Fatalf("Execute() error = %v, want *ConfirmationRequired", err)
	}
	if confirmErr.ToolName != "fs.write" {
		t.Fatalf("ConfirmationRequired.ToolName = %q, want fs.write", confirmErr.ToolName)
	}
}

func TestGatewayConfirmWithoutRequiresConfirmRuns(t *testing.T) {
	gw, reg, _ := newTestGateway(t, nil, nil)
	ran := false
	_ = reg.Register(models.ToolSpec{Name: "fs.write", Risk: models.RiskConfirm}, func(ctx context.Context, args map[string]any) (any, error) {
		ran = true
		return "wrote", nil
	})
	result, err := gw.Execute(context.Background(), models.ToolCall{ToolName: "fs.write", RequiresConfirm: false})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !ran || !result.OK {
		t.Fatalf("expected handler to run and succeed, ran=%v result=%+v", ran, result)
	}
}

func TestGatewayValidationRoundTrip(t *testing.T) {
	gw, reg, _ := newTestGateway(t, nil, nil)
	schema := json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`)
	called := false
	_ = reg.Register(models.ToolSpec{Name: "web.search", Risk: models.RiskSafe, ArgsSchema: schema}, func(ctx context.Context, args map[string]any) (any, error) {
		called = true
		return map[string]any{"ok": true}, nil
	})

	result, err := gw.Execute(context.Background(), models.ToolCall{ToolName: "web.search", Args: map[string]any{"query": "x"}})
	if err != nil || !result.OK || !called {
		t.Fatalf("valid args rejected: err=%v result=%+v called=%v", err, result, called)
	}

	called = false
	result, err = gw.Execute(context.Background(), models.ToolCall{ToolName: "web.search", Args: map[string]any{}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.OK || called {
		t.Fatalf("invalid args reached handler: result=%+v called=%v", result, called)
	}
}

func TestGatewayTimeout(t *testing.T) {
	gw, reg, _ := newTestGateway(t, nil, nil)
	_ = reg.Register(models.ToolSpec{Name: "slow.tool", Risk: models.RiskSafe, TimeoutMS: 10}, func(ctx context.Context, args map[string]any) (any, error) {
		select {
		case <-time.After(time.Second):
			return "too slow", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	result, err := gw.Execute(context.Background(), models.ToolCall{ToolName: "slow.tool"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.OK || result.Error != "timeout" {
		t.Fatalf("result = %+v, want ok=false error=timeout", result)
	}
}

func TestGatewaySuccessWrapsDataAndLogs(t *testing.T) {
	gw, reg, sink := newTestGateway(t, nil, nil)
	_ = reg.Register(models.ToolSpec{Name: "web.search", Risk: models.RiskSafe}, func(ctx context.Context, args map[string]any) (any, error) {
		return []string{"result-a"}, nil
	})
	result, err := gw.Execute(context.Background(), models.ToolCall{CallID: "c1", SessionID: "s1", ToolName: "web.search"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.OK || result.Result["data"] == nil {
		t.Fatalf("result = %+v, want ok=true with wrapped data", result)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(sink.Entries()) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	entries := sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(entries))
	}
	if entries[0].CallID != "c1" || entries[0].SessionID != "s1" {
		t.Fatalf("audit entry = %+v", entries[0])
	}
}

func TestGatewayRedactsAuditArgs(t *testing.T) {
	gw, reg, sink := newTestGateway(t, nil, nil)
	_ = reg.Register(models.ToolSpec{Name: "notes.append", Risk: models.RiskSafe}, func(ctx context.Context, args map[string]any) (any, error) {
		return "ok", nil
	})
	_, err := gw.Execute(context.Background(), models.ToolCall{
		CallID: "c2", ToolName: "notes.append",
		Args: map[string]any{"note": "email me at jane@example.com"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(sink.Entries()) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	entries := sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(entries))
	}
	if entries[0].Args["note"] != "email me at [redacted-email]" {
		t.Fatalf("audit args not redacted: %+v", entries[0].Args)
	}
}
