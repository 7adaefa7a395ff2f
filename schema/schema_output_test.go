package schema_test

import (
	"math"
	"testing"

	"github.com/huangsam/weightflow/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrichYields(t *testing.T) {
	yields := []schema.Yield{
		{Sample: "ttbar", Category: "SR", Variation: "nominal", SumW: 100, SumW2: 25},
		{Sample: "ttbar", Category: "SR", Variation: "pileupUp", SumW: 110, SumW2: 30},
		{Sample: "ttbar", Category: "SR", Variation: "pileupDown", SumW: 95, SumW2: 24},
		{Sample: "ttbar", Category: "CR", Variation: "pileupUp", SumW: 10, SumW2: 1},
		{Sample: "data", Category: "SR", Variation: "nominal", SumW: 0},
	}

	got := schema.EnrichYields(yields)
	require.Len(t, got, len(yields))

	assert.InDelta(t, 5.0, got[0].Error, 1e-12)
	assert.True(t, got[0].HasNominal)
	assert.InDelta(t, 0.0, got[0].RelDelta, 1e-12)
	assert.InDelta(t, 0.10, got[1].RelDelta, 1e-12)
	assert.InDelta(t, -0.05, got[2].RelDelta, 1e-12)
	assert.InDelta(t, math.Sqrt(30), got[1].Error, 1e-12)

	assert.False(t, got[3].HasNominal, "no nominal in CR")
	assert.False(t, got[4].HasNominal, "zero nominal")
}

func TestLabels(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"empty category", schema.CategoryLabel(""), "inclusive"},
		{"named category", schema.CategoryLabel("SR"), "SR"},
		{"empty subsample", schema.SubsampleLabel(""), "overall"},
		{"named subsample", schema.SubsampleLabel("ttbb"), "ttbb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}

	assert.True(t, schema.IsUpVariation("sf_btag_hfUp"))
	assert.True(t, schema.IsDownVariation("JESDown"))
	assert.False(t, schema.IsUpVariation("nominal"))
}

func TestYieldsOutputTotals(t *testing.T) {
	out := schema.YieldsOutput{Samples: []schema.SampleSummary{
		{Sample: "a", Chunks: 2, Events: 150},
		{Sample: "b", Chunks: 1, Events: 50},
	}}
	assert.Equal(t, int64(200), out.TotalEvents())
	assert.Equal(t, 3, out.TotalChunks())
}
