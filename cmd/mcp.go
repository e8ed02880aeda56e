package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an assistant read and edit issues through the same versioned
update rules as the CLI and HTTP API. Configure with:

  {
    "mcpServers": {
      "tracker": { "command": "tracker", "args": ["mcp"] }
    }
  }

Available tools: tracker_list_issues, tracker_get_issue,
tracker_create_issue, tracker_update_issue, tracker_bulk_status,
tracker_add_comment, tracker_report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := getService()
		if err != nil {
			return err
		}
		return mcp.NewServer(svc, buildVersion).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
