package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haasonsaas/nexus/internal/models"
	"github.com/haasonsaas/nexus/internal/tools/files"
	"github.com/haasonsaas/nexus/internal/tools/registry"
)

var fsReadSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"path": {"type": "string"}},
	"required": ["path"]
}`)

var fsWriteSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": {"type": "string"},
		"content": {"type": "string"}
	},
	"required": ["path", "content"]
}`)

// RegisterFS registers fs.read and fs.write against resolver's sandbox.
func RegisterFS(reg *registry.Registry, resolver files.Resolver) error {
	if err := reg.Register(models.ToolSpec{
		Name:        "fs.read",
		Description: "Read a text file from the workspace",
		ArgsSchema:  fsReadSchema,
		Risk:        models.RiskSafe,
		TimeoutMS:   2000,
		Caps:        []string{"fs_read"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		path, _ := args["path"].(string)
		abs, err := resolver.Resolve(path)
		if err != nil {
			return nil, fmt.Errorf("fs.read: %w", err)
		}
		content, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("fs.read: %w", err)
		}
		return string(content), nil
	}); err != nil {
		return err
	}

	return reg.Register(models.ToolSpec{
		Name:        "fs.write",
		Description: "Write a text file to the workspace",
		ArgsSchema:  fsWriteSchema,
		Risk:        models.RiskConfirm,
		TimeoutMS:   2000,
		Caps:        []string{"fs_write"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		path, _ := args["path"].(string)
		content, _ := args["content"].(string)
		abs, err := resolver.Resolve(path)
		if err != nil {
			return nil, fmt.Errorf("fs.write: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("fs.write: %w", err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("fs.write: %w", err)
		}
		return map[string]any{"ok": true}, nil
	})
}
