package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/huangsam/weightflow/core"
	"github.com/huangsam/weightflow/internal/contract"
	"github.com/huangsam/weightflow/schema"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
	mgr     contract.CacheManager
}

// configFor clones the base config and applies the shared tool arguments.
func (h *toolHandler) configFor(request mcp.CallToolRequest) (*contract.Config, error) {
	cfg := h.baseCfg.Clone()
	path := request.GetString("analysis_path", "")
	samples := request.GetString("samples", "")
	if err := contract.RevalidateAnalysis(cfg, path, samples); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (h *toolHandler) handleComputeYields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := h.configFor(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid analysis parameters: %v", err)), nil
	}
	if request.GetBool("nominal_only", false) {
		cfg.NominalOnly = true
	}

	output, err := core.ComputeYields(core.WithSuppressHeader(ctx), cfg, h.mgr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("composition failed: %v", err)), nil
	}

	result := struct {
		Yields  []schema.EnrichedYield `json:"yields"`
		Samples []schema.SampleSummary `json:"samples"`
		Cached  bool                   `json:"cached"`
	}{
		Yields:  schema.EnrichYields(output.Yields),
		Samples: output.Samples,
		Cached:  output.Cached,
	}
	jsonData, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(jsonData)), nil
}

func (h *toolHandler) handleListModifiers(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := h.configFor(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid analysis parameters: %v", err)), nil
	}

	output, err := core.BuildModifiers(cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("modifier listing failed: %v", err)), nil
	}

	jsonData, _ := json.MarshalIndent(output, "", "  ")
	return mcp.NewToolResultText(string(jsonData)), nil
}
