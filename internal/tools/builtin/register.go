// Package builtin provides the agent core's local tool implementations:
// web search, sandboxed filesystem access, notes, and task management.
// Each is registered against the Tool Registry the same way an MCP
// server's tools are, so the Agent Runtime never distinguishes local
// from remote tools.
package builtin

import (
	"github.com/haasonsaas/nexus/internal/tasks"
	"github.com/haasonsaas/nexus/internal/tools/files"
	"github.com/haasonsaas/nexus/internal/tools/registry"
)

// Config collects the dependencies the builtin tool set needs.
type Config struct {
	Resolver     files.Resolver
	Notes        NotesStore
	Tasks        tasks.Store
	SearchProvider SearchProvider
	Now          func() int64
}

// RegisterAll wires web.search, fs.read, fs.write, notes.append,
// notes.search, tasks.create, tasks.search, and tasks.run into reg.
func RegisterAll(reg *registry.Registry, cfg Config) error {
	if cfg.SearchProvider == nil {
		cfg.SearchProvider = MissingConfigProvider{Reason: "no web search provider configured"}
	}
	if err := RegisterWebSearch(reg, cfg.SearchProvider); err != nil {
		return err
	}
	if err := RegisterFS(reg, cfg.Resolver); err != nil {
		return err
	}
	if err := RegisterNotes(reg, cfg.Notes, cfg.Now); err != nil {
		return err
	}
	return RegisterTasks(reg, cfg.Tasks, cfg.Now)
}
