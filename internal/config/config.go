// Package config loads the agent core's runtime configuration: which LLM
// provider to call, where state lives, the tool policy lists, and the
// MCP server manifest. Unlike the channel-gateway config this core was
// modeled on, there is no per-channel or per-plugin section to load —
// one small document configures the nine components end to end.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/nexus/internal/mcp"
)

// RuntimeConfig is the top-level configuration for the agent core.
type RuntimeConfig struct {
	LLM       LLMConfig       `yaml:"llm"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Bus       BusConfig       `yaml:"bus"`
	State     StateConfig     `yaml:"state"`
	Tools     ToolsConfig     `yaml:"tools"`
	Policy    PolicyConfig    `yaml:"policy"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Runtime   RuntimeTuning   `yaml:"runtime"`
	MCP       mcp.Config      `yaml:"mcp"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LLMConfig selects and configures the LLM Client.
type LLMConfig struct {
	// Provider is "anthropic" or "openai".
	Provider     string `yaml:"provider"`
	APIKeyEnv    string `yaml:"api_key_env"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
	MaxTokens    int    `yaml:"max_tokens"`
}

// WorkspaceConfig roots the filesystem sandbox the fs.* builtin tools
// resolve paths against.
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// BusConfig selects the Event Bus backend.
type BusConfig struct {
	// Mode is "memory" or "redis".
	Mode      string `yaml:"mode"`
	RedisAddr string `yaml:"redis_addr"`
}

// StateConfig selects the State Store and Task repository backend.
type StateConfig struct {
	// Driver is "memory" or "sqlite".
	Driver       string `yaml:"driver"`
	SessionsPath string `yaml:"sessions_path"`
	TasksPath    string `yaml:"tasks_path"`
	AuditPath    string `yaml:"audit_path"`
}

// ToolsConfig configures the supplemented built-in tools.
type ToolsConfig struct {
	WebSearch WebSearchConfig `yaml:"web_search"`
	Notes     NotesConfig     `yaml:"notes"`
}

// WebSearchConfig configures the web.search builtin tool's provider.
type WebSearchConfig struct {
	// Provider is "perplexity" or "" (missing-config stub).
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
}

// NotesConfig selects the notes.* builtin tools' storage backend.
type NotesConfig struct {
	// Driver is "memory" or "sqlite". Empty defaults to the state
	// store's driver; with sqlite, notes share the tasks database.
	Driver string `yaml:"driver"`
}

// PolicyConfig carries the Tool Policy's explicit deny/confirm lists.
type PolicyConfig struct {
	Deny    []string `yaml:"deny"`
	Confirm []string `yaml:"confirm"`
}

// SchedulerConfig configures the tick loop interval.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// RuntimeTuning configures the Agent Runtime's turn loop.
type RuntimeTuning struct {
	MaxToolSteps  int    `yaml:"max_tool_steps"`
	HistoryWindow int    `yaml:"history_window"`
	SystemPrompt  string `yaml:"system_prompt"`
}

// LoggingConfig holds the logging section of the configuration. It is
// loaded and defaulted but not applied: the agentcore binary's logger is
// always JSON at info level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses path, expanding ${VAR} environment references,
// applies defaults, and validates the result.
func Load(path string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg RuntimeConfig
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *RuntimeConfig) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.LLM.APIKeyEnv == "" {
		switch strings.ToLower(cfg.LLM.Provider) {
		case "openai":
			cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
		default:
			cfg.LLM.APIKeyEnv = "ANTHROPIC_API_KEY"
		}
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = "."
	}
	if cfg.Bus.Mode == "" {
		cfg.Bus.Mode = "memory"
	}
	if cfg.State.Driver == "" {
		cfg.State.Driver = "memory"
	}
	if cfg.Tools.Notes.Driver == "" {
		cfg.Tools.Notes.Driver = cfg.State.Driver
	}
	if cfg.Tools.WebSearch.APIKey == "" && cfg.Tools.WebSearch.APIKeyEnv != "" {
		cfg.Tools.WebSearch.APIKey = os.Getenv(cfg.Tools.WebSearch.APIKeyEnv)
	}
	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = 30 * time.Second
	}
	if cfg.Runtime.MaxToolSteps == 0 {
		cfg.Runtime.MaxToolSteps = 3
	}
	if cfg.Runtime.HistoryWindow == 0 {
		cfg.Runtime.HistoryWindow = 40
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *RuntimeConfig) {
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_BUS_MODE")); value != "" {
		cfg.Bus.Mode = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_LOG_LEVEL")); value != "" {
		cfg.Logging.Level = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_MAX_TOOL_STEPS")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Runtime.MaxToolSteps = parsed
		}
	}
}

// ValidationError reports one or more configuration problems.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *RuntimeConfig) error {
	var issues []string

	switch strings.ToLower(strings.TrimSpace(cfg.LLM.Provider)) {
	case "anthropic", "openai":
	default:
		issues = append(issues, `llm.provider must be "anthropic" or "openai"`)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Bus.Mode)) {
	case "memory", "redis":
	default:
		issues = append(issues, `bus.mode must be "memory" or "redis"`)
	}
	if strings.EqualFold(cfg.Bus.Mode, "redis") && strings.TrimSpace(cfg.Bus.RedisAddr) == "" {
		issues = append(issues, "bus.redis_addr is required when bus.mode is \"redis\"")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.State.Driver)) {
	case "memory", "sqlite":
	default:
		issues = append(issues, `state.driver must be "memory" or "sqlite"`)
	}
	if strings.EqualFold(cfg.State.Driver, "sqlite") && strings.TrimSpace(cfg.State.SessionsPath) == "" {
		issues = append(issues, "state.sessions_path is required when state.driver is \"sqlite\"")
	}
	if cfg.Runtime.MaxToolSteps < 1 {
		issues = append(issues, "runtime.max_tool_steps must be >= 1")
	}
	if cfg.Runtime.HistoryWindow < 1 {
		issues = append(issues, "runtime.history_window must be >= 1")
	}
	if cfg.Scheduler.Interval < 0 {
		issues = append(issues, "scheduler.interval must be >= 0")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
