// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/huangsam/weightflow/internal/contract"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer initializes and configures the Weightflow MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, mgr contract.CacheManager) *server.MCPServer {
	s := server.NewMCPServer(
		"Weightflow Composition Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg: baseCfg,
		mgr:     mgr,
	}

	// --- 1. Tool: compute_yields ---
	s.AddTool(mcp.NewTool("compute_yields",
		mcp.WithDescription("Compose event weights and return the weighted yields of every sample, category, subsample and variation."),
		mcp.WithString("analysis_path", mcp.Description("Path to the analysis YAML file (defaults to the server's analysis).")),
		mcp.WithString("samples", mcp.Description("Comma-separated list of samples to process. Defaults to every sample.")),
		mcp.WithBoolean("nominal_only", mcp.Description("Only fill the nominal variation.")),
	), h.handleComputeYields)

	// --- 2. Tool: list_modifiers ---
	s.AddTool(mcp.NewTool("list_modifiers",
		mcp.WithDescription("List the weight modifiers available in every sample scope without reading events."),
		mcp.WithString("analysis_path", mcp.Description("Path to the analysis YAML file.")),
		mcp.WithString("samples", mcp.Description("Comma-separated list of samples to inspect.")),
	), h.handleListModifiers)

	return s
}

// StartMCPServer starts the Weightflow MCP server.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, mgr contract.CacheManager) error {
	s := NewMCPServer(baseCfg, mgr)
	return server.ServeStdio(s)
}
