package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/jide/internal/mcptools"
)

func newServeMCPCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve the build and inspection tools over MCP (stdio, or streamable HTTP with --http)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			server := mcptools.NewMCPServer(mcptools.NewIDEService(a.ide(), a.root, a.loadSettings))
			if addr != "" {
				a.logger.Info("serving MCP over HTTP", zap.String("addr", addr), zap.String("project", a.root))
				return mcptools.RunHTTP(cmd.Context(), server, addr)
			}
			a.logger.Info("serving MCP over stdio", zap.String("project", a.root))
			return mcptools.RunStdio(cmd.Context(), server)
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "listen address for streamable HTTP, e.g. localhost:8087")
	return cmd
}
