package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/config"
)

// buildServeCmd creates the "serve" command that wires every component
// together and runs the turn loop against a terminal chat client until
// interrupted.
func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent core and a terminal chat client",
		Long: `Start the agent core.

serve will:
1. Load and validate the configuration file
2. Construct the Event Bus, State Store, Tool Registry, Tool Policy,
   and Tool Gateway
3. Connect configured MCP servers and register their tools
4. Construct the LLM Client and Agent Runtime
5. Start the Scheduler's tick loop
6. Run a terminal chat client that publishes input.text and prints
   output.text until interrupted (Ctrl-C)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "agentcore.yaml", "Path to YAML configuration file")
	return cmd
}

// buildValidateCmd creates the "validate" command for checking a config
// file without starting anything.
func buildValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config OK: llm.provider=%s bus.mode=%s state.driver=%s\n",
				cfg.LLM.Provider, cfg.Bus.Mode, cfg.State.Driver)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "agentcore.yaml", "Path to YAML configuration file")
	return cmd
}
