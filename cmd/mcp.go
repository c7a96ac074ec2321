package cmd

import (
	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/mcp"
	"github.com/wardenhq/warden/internal/policy"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for work-selection agents",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets the agent that picks the next work item consult warden's failure
ledger before offering something that keeps getting rejected. Configure in
the agent with:

  {
    "mcpServers": {
      "warden": { "command": "warden", "args": ["mcp"] }
    }
  }

Available tools: warden_should_skip, warden_similar_failures,
warden_failure_patterns, warden_queue_status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := policy.FromViper()
		srv := mcp.NewServer(getLedger(cfg), getQueue(cfg))
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
