package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "validate"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestValidateCommandRejectsMissingFile(t *testing.T) {
	cmd := buildRootCmd()
	cmd.SetArgs([]string{"validate", "--config", "/nonexistent/agentcore.yaml"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
