package mcp_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huangsam/weightflow/internal/contract"
	mcp_internal "github.com/huangsam/weightflow/internal/mcp"
	"github.com/huangsam/weightflow/schema"
)

const testAnalysis = `
categories:
  SR: [{column: njets, min: 4}]
samples:
  data:
    files: [data.parquet]
    year: "2018"
    weights:
      inclusive: [kfactor]
  other:
    files: [missing.parquet]
    year: "2018"
parameters:
  constant_weights:
    - {name: kfactor, value: 2, up: 3, down: 1}
`

type event struct {
	NJets float64 `parquet:"njets"`
}

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "analysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testAnalysis), 0o644))
	require.NoError(t, parquet.WriteFile(filepath.Join(dir, "data.parquet"), []event{{NJets: 5}, {NJets: 2}}))
	return path
}

func callTool(t *testing.T, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	s := mcp_internal.NewMCPServer(&contract.Config{Workers: 2, ChunkSize: 10, Precision: 3}, nil)
	tool := s.GetTool(name)
	require.NotNil(t, tool, "tool %s should exist", name)

	res, err := tool.Handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err, "The MCP handler should not return a raw error for tool logic failures")
	require.NotEmpty(t, res.Content)
	return res
}

func text(res *mcp.CallToolResult) string {
	return res.Content[0].(mcp.TextContent).Text
}

func TestComputeYieldsTool(t *testing.T) {
	path := setup(t)
	res := callTool(t, "compute_yields", map[string]any{"analysis_path": path, "samples": "data"})
	require.False(t, res.IsError, text(res))

	var got struct {
		Yields  []schema.EnrichedYield `json:"yields"`
		Samples []schema.SampleSummary `json:"samples"`
	}
	require.NoError(t, json.Unmarshal([]byte(text(res)), &got))
	require.Len(t, got.Samples, 1)
	assert.Equal(t, int64(2), got.Samples[0].Events)

	sums := make(map[[2]string]float64)
	for _, y := range got.Yields {
		sums[[2]string{y.Category, y.Variation}] = y.SumW
	}
	assert.InDelta(t, 4.0, sums[[2]string{"", "nominal"}], 1e-9)
	assert.InDelta(t, 6.0, sums[[2]string{"", "kfactorUp"}], 1e-9)
	assert.InDelta(t, 2.0, sums[[2]string{"SR", "nominal"}], 1e-9)
}

func TestComputeYieldsToolNominalOnly(t *testing.T) {
	path := setup(t)
	res := callTool(t, "compute_yields", map[string]any{"analysis_path": path, "samples": "data", "nominal_only": true})
	require.False(t, res.IsError, text(res))

	var got struct {
		Yields []schema.EnrichedYield `json:"yields"`
	}
	require.NoError(t, json.Unmarshal([]byte(text(res)), &got))
	for _, y := range got.Yields {
		assert.Equal(t, schema.NominalVariation, y.Variation)
	}
}

func TestListModifiersTool(t *testing.T) {
	path := setup(t)
	res := callTool(t, "list_modifiers", map[string]any{"analysis_path": path})
	require.False(t, res.IsError, text(res))

	var got schema.ModifiersOutput
	require.NoError(t, json.Unmarshal([]byte(text(res)), &got))
	require.NotEmpty(t, got.Scopes)
	assert.Contains(t, got.Scopes[0].Modifiers, "kfactorUp")
}

func TestMCPServerHandlers_ValidationErrors(t *testing.T) {
	path := setup(t)
	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		errPart string
	}{
		{"no analysis loaded", "list_modifiers", map[string]any{}, "no analysis loaded"},
		{"missing analysis file", "compute_yields", map[string]any{"analysis_path": filepath.Join(t.TempDir(), "nope.yaml")}, "invalid analysis parameters"},
		{"unknown sample", "compute_yields", map[string]any{"analysis_path": path, "samples": "zz"}, "unknown sample"},
		{"missing event file", "compute_yields", map[string]any{"analysis_path": path, "samples": "other"}, "composition failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, tt.tool, tt.args)
			assert.True(t, res.IsError, "The response should indicate an error state")
			assert.Contains(t, text(res), tt.errPart)
		})
	}
}
