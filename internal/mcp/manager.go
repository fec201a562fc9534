package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/haasonsaas/nexus/internal/models"
	"github.com/haasonsaas/nexus/internal/tools/registry"
)

// Manager manages multiple MCP server connections.
type Manager struct {
	config       *Config
	logger       *slog.Logger
	clients      map[string]*Client
	connectOrder []string
	mu           sync.RWMutex
}

// Config holds the MCP manager configuration.
type Config struct {
	Enabled bool            `yaml:"enabled"`
	Servers []*ServerConfig `yaml:"servers"`
}

// NewManager creates a new MCP manager.
func NewManager(cfg *Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		config:  cfg,
		logger:  logger.With("component", "mcp"),
		clients: make(map[string]*Client),
	}
}

// Start connects to all configured MCP servers with auto_start enabled.
func (m *Manager) Start(ctx context.Context) error {
	if m.config == nil || !m.config.Enabled {
		m.logger.Debug("MCP disabled")
		return nil
	}

	for _, serverCfg := range m.config.Servers {
		if !serverCfg.AutoStart {
			continue
		}

		if err := m.Connect(ctx, serverCfg.ID); err != nil {
			m.logger.Error("failed to connect to MCP server",
				"server", serverCfg.ID,
				"error", err)
			// Continue with other servers
		}
	}

	return nil
}

// Stop disconnects from all MCP servers in the reverse of the order
// they were connected, so a server started after another that depends
// on it (e.g. sharing a process group or auth session) tears down
// first.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.connectOrder) - 1; i >= 0; i-- {
		id := m.connectOrder[i]
		client, ok := m.clients[id]
		if !ok {
			continue
		}
		if err := client.Close(); err != nil {
			m.logger.Error("failed to close MCP client",
				"server", id,
				"error", err)
		}
		delete(m.clients, id)
	}
	m.connectOrder = nil

	return nil
}

// Connect connects to a specific MCP server by ID.
func (m *Manager) Connect(ctx context.Context, serverID string) error {
	// Find server config
	var serverCfg *ServerConfig
	for _, cfg := range m.config.Servers {
		if cfg.ID == serverID {
			serverCfg = cfg
			break
		}
	}

	if serverCfg == nil {
		return fmt.Errorf("server %q not found in config", serverID)
	}

	// Check if already connected
	m.mu.RLock()
	if _, exists := m.clients[serverID]; exists {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()

	// Create and connect client
	client := NewClient(serverCfg, m.logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.clients[serverID] = client
	m.connectOrder = append(m.connectOrder, serverID)
	m.mu.Unlock()

	m.logger.Info("connected to MCP server",
		"server", serverID,
		"name", client.ServerInfo().Name)

	return nil
}

// RegisterInto adds every allowed tool from every connected server into
// reg, named "mcp.<server>.<tool>". A server's tool is allowed when it
// appears in that server's AllowTools, or, absent an allow list, when
// the server is Trusted. Each tool's risk is "safe" unless overridden
// in RiskOverrides.
func (m *Manager) RegisterInto(reg *registry.Registry) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, cfg := range m.config.Servers {
		client, connected := m.clients[cfg.ID]
		if !connected {
			continue
		}
		for _, tool := range client.Tools() {
			if !toolAllowed(cfg, tool.Name) {
				continue
			}
			spec := models.ToolSpec{
				Name:        fmt.Sprintf("mcp.%s.%s", cfg.ID, tool.Name),
				Description: tool.Description,
				ArgsSchema:  tool.InputSchema,
				Risk:        mcpToolRisk(cfg, tool.Name),
				TimeoutMS:   15000,
				Caps:        []string{"mcp"},
			}
			handler := mcpToolHandler(client, tool.Name)
			if err := reg.Register(spec, handler); err != nil {
				return fmt.Errorf("register mcp tool %s: %w", spec.Name, err)
			}
		}
	}
	return nil
}

func toolAllowed(cfg *ServerConfig, toolName string) bool {
	if len(cfg.AllowTools) > 0 {
		for _, allowed := range cfg.AllowTools {
			if allowed == toolName {
				return true
			}
		}
		return false
	}
	return cfg.Trusted
}

func mcpToolRisk(cfg *ServerConfig, toolName string) models.Risk {
	level, ok := cfg.RiskOverrides[toolName]
	if !ok {
		return models.RiskSafe
	}
	switch strings.ToLower(level) {
	case "confirm":
		return models.RiskConfirm
	case "dangerous":
		return models.RiskDangerous
	default:
		return models.RiskSafe
	}
}

func mcpToolHandler(client *Client, toolName string) registry.Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		result, err := client.CallTool(ctx, toolName, args)
		if err != nil {
			return nil, err
		}
		text := contentToText(result.Content)
		if result.IsError {
			return nil, fmt.Errorf("mcp tool %s: %s", toolName, text)
		}
		return map[string]any{"content": text}, nil
	}
}

func contentToText(content []ToolResultContent) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		if c.Text != "" {
			parts = append(parts, strings.TrimSpace(c.Text))
		}
	}
	return strings.Join(parts, "\n")
}
