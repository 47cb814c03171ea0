package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/BaCuaBan77/Portfolio-generator/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients query the portfolio and trigger a sync. Configure
with:

  {
    "mcpServers": {
      "portfolio": { "command": "portfolio", "args": ["mcp"] }
    }
  }

Available tools: portfolio_list_projects, portfolio_get_project,
portfolio_sync_status, portfolio_run_sync`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	d := newSyncDeps()
	defer closeHistory()

	srv := mcp.NewServer(d.config, d.historyOrNil(), d.service, d.gh, buildVersion)
	return srv.ServeStdio(ctx)
}
