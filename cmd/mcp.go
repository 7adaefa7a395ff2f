package cmd

import (
	"github.com/huangsam/weightflow/internal/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd serves the composition tools over MCP on stdio.
var mcpCmd = &cobra.Command{
	Use:   "mcp [analysis-path]",
	Short: "Start the Weightflow MCP server",
	Long: `Launch an MCP server on stdio that lets AI agents compute yields and list
weight modifiers through the compute_yields and list_modifiers tools.

The analysis given here is the default for every tool call. A call may pass
analysis_path or samples to override it. Progress headers are suppressed so
stdout carries only protocol messages.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		return mcp.StartMCPServer(rootCtx, cfg, cacheManager)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
