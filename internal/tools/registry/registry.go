// Package registry implements the Tool Registry: a catalog mapping a
// dotted tool name to its immutable ToolSpec and async handler.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/haasonsaas/nexus/internal/models"
)

// ErrAlreadyRegistered is returned by Register when name is already
// present in the registry.
var ErrAlreadyRegistered = errors.New("already registered")

// ErrNotRegistered is returned by Get/Handler when name is absent.
var ErrNotRegistered = errors.New("not registered")

// Handler is the abstract shape every tool implementation satisfies: an
// async function from a JSON-like argument object to a JSON-serializable
// value. The gateway does not know concrete handler types.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Registry holds {name -> (ToolSpec, handler)}. Registration happens once
// at startup for local tools, and again, additively, after the MCP
// client connects.
type Registry struct {
	mu       sync.RWMutex
	specs    map[string]models.ToolSpec
	handlers map[string]Handler
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		specs:    make(map[string]models.ToolSpec),
		handlers: make(map[string]Handler),
	}
}

// Register adds a tool. It fails with ErrAlreadyRegistered if spec.Name
// is already present — a tool name is never replaced.
func (r *Registry) Register(spec models.ToolSpec, handler Handler) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("tool %s: handler is required", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("tool %s: %w", spec.Name, ErrAlreadyRegistered)
	}
	r.specs[spec.Name] = spec
	r.handlers[spec.Name] = handler
	return nil
}

// Get returns the ToolSpec registered under name.
func (r *Registry) Get(name string) (models.ToolSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]
	if !ok {
		return models.ToolSpec{}, fmt.Errorf("tool %s: %w", name, ErrNotRegistered)
	}
	return spec, nil
}

// Handler returns the handler registered under name.
func (r *Registry) Handler(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("tool %s: %w", name, ErrNotRegistered)
	}
	return handler, nil
}

// ListSpecs returns the current set of registered specs. Order is not
// significant.
func (r *Registry) ListSpecs() []models.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ToolSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		out = append(out, spec)
	}
	return out
}
