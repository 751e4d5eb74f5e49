package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/jide/internal/config"
	"github.com/dusk-indust/jide/internal/source"
)

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// jideMCPEntry is the MCP server configuration for the jide binary.
var jideMCPEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "jide",
  "args": ["serve-mcp"]
}`)

func newInitCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create jide.yml, a Main.java template and the .mcp.json server entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout(), a.root, a.settings, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing jide.yml and .mcp.json entry")
	return cmd
}

// runInit sets up a project directory for builds and MCP clients.
func runInit(out io.Writer, root string, s config.Settings, force bool) error {
	settingsPath := filepath.Join(root, config.FileNames[0])
	if _, err := os.Stat(settingsPath); err == nil && !force {
		fmt.Fprintf(out, "  skipped %s (exists, use --force to overwrite)\n", dotRelative(root, settingsPath))
	} else {
		relative := config.Defaults()
		relative.LanguageLevel = s.LanguageLevel
		if err := config.Save(root, relative); err != nil {
			return err
		}
		fmt.Fprintf(out, "  created %s\n", dotRelative(root, settingsPath))
	}

	created, err := source.EnsureMain(s.JavaDir)
	if err != nil {
		return err
	}
	if created != "" {
		fmt.Fprintf(out, "  created %s\n", dotRelative(root, created))
	}

	if err := mergeMCPConfig(out, filepath.Join(root, ".mcp.json"), force); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nSetup complete. Run `jide provision` once to install the platform jars.")
	return nil
}

// mergeMCPConfig creates or merges the jide entry into .mcp.json.
func mergeMCPConfig(out io.Writer, mcpPath string, force bool) error {
	var cfg mcpConfig

	data, err := os.ReadFile(mcpPath)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", mcpPath, err)
		}
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	if _, exists := cfg.MCPServers["jide"]; exists && !force {
		fmt.Fprintln(out, "  skipped .mcp.json jide entry (exists, use --force to overwrite)")
		return nil
	}

	cfg.MCPServers["jide"] = jideMCPEntry

	encoded, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}

	if err := os.WriteFile(mcpPath, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Fprintf(out, "  %s .mcp.json with jide MCP server\n", action)
	return nil
}

// dotRelative returns a display path relative to the project root, prefixed
// with "./".
func dotRelative(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return "./" + rel
}
