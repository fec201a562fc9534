// Package main provides the agentcore daemon: the process entrypoint that
// wires the Event Bus, State Store, Tool Registry, Tool Policy, Tool
// Gateway, MCP Client, LLM Client, Agent Runtime, and Scheduler together
// and runs the turn loop until stopped.
//
// # Basic Usage
//
// Start the daemon:
//
//	agentcore serve --config agentcore.yaml
//
// Validate a configuration file without starting anything:
//
//	agentcore validate --config agentcore.yaml
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY: LLM provider credentials
//   - AGENTCORE_BUS_MODE: overrides bus.mode ("memory" or "redis")
//   - AGENTCORE_LOG_LEVEL: overrides logging.level (the value is loaded
//     but does not change the daemon's log level)
//   - AGENTCORE_MAX_TOOL_STEPS: overrides runtime.max_tool_steps
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() so it can be exercised directly by tests.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "agentcore",
		Short:   "agentcore - a local conversational agent runtime",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Long: `agentcore runs the event bus, tool gateway, MCP client, LLM client,
agent runtime, and scheduler that make up a single-process conversational
agent core.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd(), buildValidateCmd())
	return rootCmd
}
