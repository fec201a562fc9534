package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/bus"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/llm"
	"github.com/haasonsaas/nexus/internal/mcp"
	"github.com/haasonsaas/nexus/internal/models"
	"github.com/haasonsaas/nexus/internal/scheduler"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/internal/tasks"
	"github.com/haasonsaas/nexus/internal/tools/builtin"
	"github.com/haasonsaas/nexus/internal/tools/files"
	"github.com/haasonsaas/nexus/internal/tools/gateway"
	"github.com/haasonsaas/nexus/internal/tools/policy"
	"github.com/haasonsaas/nexus/internal/tools/registry"

	redisclient "github.com/redis/go-redis/v9"
)

// runServe builds every component from cfg and runs the turn loop until
// the process receives SIGINT/SIGTERM.
func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("agentcore starting",
		"version", version,
		"llm_provider", cfg.LLM.Provider,
		"bus_mode", cfg.Bus.Mode,
		"state_driver", cfg.State.Driver,
	)

	eventBus, err := buildBus(cfg)
	if err != nil {
		return fmt.Errorf("build bus: %w", err)
	}

	sessionStore, err := buildSessionStore(cfg)
	if err != nil {
		return fmt.Errorf("build session store: %w", err)
	}

	taskStore, notesStore, auditSink, err := buildStateBackends(cfg)
	if err != nil {
		return fmt.Errorf("build state backends: %w", err)
	}

	reg := registry.New()

	resolver := files.Resolver{Root: cfg.Workspace.Root}
	if err := builtin.RegisterAll(reg, builtin.Config{
		Resolver:       resolver,
		Notes:          notesStore,
		Tasks:          taskStore,
		SearchProvider: buildSearchProvider(cfg),
		Now:            func() int64 { return nowUnix() },
	}); err != nil {
		return fmt.Errorf("register builtin tools: %w", err)
	}

	mcpManager := mcp.NewManager(&cfg.MCP, slog.Default())
	if err := mcpManager.Start(ctx); err != nil {
		slog.Error("mcp manager start failed", "error", err)
	}
	defer func() {
		if err := mcpManager.Stop(); err != nil {
			slog.Error("mcp manager stop failed", "error", err)
		}
	}()
	if err := mcpManager.RegisterInto(reg); err != nil {
		return fmt.Errorf("register mcp tools: %w", err)
	}

	pol := policy.New(cfg.Policy.Deny, cfg.Policy.Confirm)
	gw := gateway.New(reg, pol, auditSink)

	llmClient, err := buildLLMClient(cfg)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}

	runtime := agent.New(eventBus, sessionStore, reg, gw,
		agent.WithLLMClient(llmClient),
		agent.WithMaxToolSteps(cfg.Runtime.MaxToolSteps),
		agent.WithHistoryWindow(cfg.Runtime.HistoryWindow),
		agent.WithSystemPrompt(cfg.Runtime.SystemPrompt),
	)
	subscription := runtime.Start()
	defer subscription.Close()

	sched := scheduler.New(taskStore, eventBus, "scheduler",
		scheduler.WithInterval(cfg.Scheduler.Interval),
	)

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched.Start(runCtx)
	defer sched.Stop()

	printSub := eventBus.Subscribe(bus.TopicOutputText, printOutput)
	defer printSub.Close()

	slog.Info("agentcore ready, type a message and press enter (Ctrl-C to quit)")

	go runChatClient(runCtx, eventBus)

	<-runCtx.Done()
	slog.Info("shutdown signal received")
	return nil
}

func nowUnix() int64 { return time.Now().Unix() }

func printOutput(ctx context.Context, msg any) error {
	out, ok := msg.(models.OutputText)
	if !ok {
		return nil
	}
	fmt.Printf("> %s\n", out.Text)
	return nil
}

// runChatClient is the terminal front-end spec.md treats as an external
// collaborator identified only by the bus contract: it publishes
// input.text for each line of stdin and relies on printOutput (subscribed
// separately) to render replies.
func runChatClient(ctx context.Context, b bus.Bus) {
	scanner := bufio.NewScanner(os.Stdin)
	sessionID := "local"
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		msg := models.InputText{
			SessionID: sessionID,
			MessageID: uuid.NewString(),
			Ts:        nowUnix(),
			Text:      text,
			Source:    models.SourceCLI,
		}
		if err := b.Publish(ctx, bus.TopicInputText, msg); err != nil {
			slog.Error("publish input.text failed", "error", err)
		}
	}
}

func buildBus(cfg *config.RuntimeConfig) (bus.Bus, error) {
	if strings.EqualFold(cfg.Bus.Mode, "redis") {
		rdb := redisclient.NewClient(&redisclient.Options{Addr: cfg.Bus.RedisAddr})
		return bus.NewRedisBus(rdb), nil
	}
	return bus.NewMemoryBus(), nil
}

func buildSessionStore(cfg *config.RuntimeConfig) (sessions.Store, error) {
	if strings.EqualFold(cfg.State.Driver, "sqlite") {
		return sessions.NewSQLiteStore(cfg.State.SessionsPath)
	}
	return sessions.NewMemoryStore(), nil
}

func buildStateBackends(cfg *config.RuntimeConfig) (tasks.Store, builtin.NotesStore, gateway.AuditSink, error) {
	if !strings.EqualFold(cfg.State.Driver, "sqlite") {
		return tasks.NewMemoryStore(), builtin.NewMemoryNotesStore(), gateway.NewMemoryAuditSink(), nil
	}

	tasksDB, err := sql.Open("sqlite", cfg.State.TasksPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open tasks db: %w", err)
	}
	taskStore, err := tasks.NewSQLiteStore(tasksDB)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init tasks store: %w", err)
	}

	if !strings.EqualFold(cfg.Tools.Notes.Driver, "sqlite") {
		return taskStore, builtin.NewMemoryNotesStore(), buildAuditSink(cfg, tasksDB), nil
	}
	notesStore, err := builtin.NewSQLiteNotesStore(tasksDB)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init notes store: %w", err)
	}
	return taskStore, notesStore, buildAuditSink(cfg, tasksDB), nil
}

func buildAuditSink(cfg *config.RuntimeConfig, db *sql.DB) gateway.AuditSink {
	if strings.TrimSpace(cfg.State.AuditPath) == "" {
		sink, err := gateway.NewSQLiteAuditSink(db)
		if err != nil {
			slog.Error("audit sink init failed, falling back to memory", "error", err)
			return gateway.NewMemoryAuditSink()
		}
		return sink
	}
	auditDB, err := sql.Open("sqlite", cfg.State.AuditPath)
	if err != nil {
		slog.Error("open audit db failed, falling back to memory", "error", err)
		return gateway.NewMemoryAuditSink()
	}
	sink, err := gateway.NewSQLiteAuditSink(auditDB)
	if err != nil {
		slog.Error("audit sink init failed, falling back to memory", "error", err)
		return gateway.NewMemoryAuditSink()
	}
	return sink
}

func buildSearchProvider(cfg *config.RuntimeConfig) builtin.SearchProvider {
	switch strings.ToLower(cfg.Tools.WebSearch.Provider) {
	case "perplexity":
		p := builtin.NewPerplexityProvider(cfg.Tools.WebSearch.APIKey, cfg.Tools.WebSearch.BaseURL, cfg.Tools.WebSearch.Model)
		return p
	default:
		return builtin.MissingConfigProvider{Reason: "no web search provider configured"}
	}
}

func buildLLMClient(cfg *config.RuntimeConfig) (llm.Client, error) {
	apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:       apiKey,
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.DefaultModel,
			MaxTokens:    cfg.LLM.MaxTokens,
		})
	default:
		return llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:       apiKey,
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.DefaultModel,
			MaxTokens:    cfg.LLM.MaxTokens,
		})
	}
}
