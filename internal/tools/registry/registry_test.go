package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/nexus/internal/models"
)

func noopHandler(ctx context.Context, args map[string]any) (any, error) {
	return nil, nil
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := New()
	spec := models.ToolSpec{Name: "web.search", Risk: models.RiskSafe}
	if err := r.Register(spec, noopHandler); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	err := r.Register(spec, noopHandler)
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("second Register() error = %v, want ErrAlreadyRegistered", err)
	}
}

func TestGetNotRegistered(t *testing.T) {
	r := New()
	_, err := r.Get("nope")
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("Get() error = %v, want ErrNotRegistered", err)
	}
	_, err = r.Handler("nope")
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("Handler() error = %v, want ErrNotRegistered", err)
	}
}

func TestListSpecs(t *testing.T) {
	r := New()
	_ = r.Register(models.ToolSpec{Name: "a", Risk: models.RiskSafe}, noopHandler)
	_ = r.Register(models.ToolSpec{Name: "b", Risk: models.RiskConfirm}, noopHandler)

	specs := r.ListSpecs()
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}
}
