package contrib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huangsam/weightflow/core/correction"
	"github.com/huangsam/weightflow/core/events"
	"github.com/huangsam/weightflow/core/weights"
)

const correctionsJSON = `{
  "corrections": {
    "pileup": {
      "input": "Pileup_nTrueInt",
      "edges": [0, 30, 100],
      "values": {"nominal": [0.5, 2.0], "up": [0.6, 2.2], "down": [0.4, 1.8]}
    },
    "sf_btag": {
      "input": "btag_discriminant",
      "edges": [0, 0.5, 1],
      "values": {
        "nominal": [1.0, 0.8],
        "up_hf": [1.1, 0.9], "down_hf": [0.9, 0.7],
        "up_lf": [1.2, 1.0], "down_lf": [0.8, 0.6]
      }
    }
  }
}`

func writeCorrections(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corrections.json")
	require.NoError(t, os.WriteFile(path, []byte(correctionsJSON), 0o644))
	return path
}

func testEvents(t *testing.T) *events.Table {
	t.Helper()
	table, err := events.FromColumns(map[string][]float64{
		"genWeight":         {1, -1, 2},
		"Pileup_nTrueInt":   {10, 50, 90},
		"btag_discriminant": {0.1, 0.7, 0.9},
		"trig":              {0.9, 0.95, 1.0},
		"trig_up":           {1.0, 1.0, 1.0},
		"trig_down":         {0.8, 0.9, 1.0},
	})
	require.NoError(t, err)
	return table
}

func ptr(v float64) *float64 { return &v }

func testParams(t *testing.T) Params {
	return Params{
		Lumi:           map[string]float64{"2018": 59.8},
		CorrectionFile: writeCorrections(t),
		BTagSources:    map[string][]string{"2018": {"hf", "lf"}},
		Columns:        []ColumnWeight{{Name: "trigger", Nominal: "trig", Up: "trig_up", Down: "trig_down"}},
		Constants:      []ConstantWeight{{Name: "kfactor", Value: 1.5, Up: ptr(1.6), Down: ptr(1.4)}},
	}
}

func mcMeta() weights.Metadata {
	return weights.Metadata{Sample: "ttbar", Year: "2018", IsMC: true, XSection: 800, SumGenWeights: 400}
}

func compose(t *testing.T, params Params, meta weights.Metadata, names []string, shape string) *weights.Composer {
	t.Helper()
	reg, err := NewRegistry(params)
	require.NoError(t, err)
	eng, err := weights.NewEngine(reg, weights.SampleScope{Inclusive: names}, meta, weights.Options{})
	require.NoError(t, err)
	c := eng.NewComposer(testEvents(t), shape)
	require.NoError(t, c.Compute())
	return c
}

func TestRegistryNames(t *testing.T) {
	reg, err := NewRegistry(testParams(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"XS", "genWeight", "kfactor", "lumi", "pileup", "sf_btag", "trigger"}, reg.Names())

	params := testParams(t)
	params.Constants = append(params.Constants, ConstantWeight{Name: "lumi", Value: 1})
	_, err = NewRegistry(params)
	assert.ErrorIs(t, err, weights.ErrDuplicateContributor)
}

func TestMonteCarloWeights(t *testing.T) {
	c := compose(t, testParams(t), mcMeta(), []string{NameGenWeight, NameLumi, NameXS}, weights.Nominal)
	w, err := c.GetWeight("", "", "")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{119.6, -119.6, 239.2}, w, 1e-9)
}

func TestDataWeightsAreOne(t *testing.T) {
	meta := weights.Metadata{Sample: "data", Year: "2018"}
	names := []string{NameGenWeight, NameLumi, NameXS, NamePileup, NameBTag}
	c := compose(t, testParams(t), meta, names, weights.Nominal)

	for _, mod := range append([]string{""}, c.InstalledModifiers("", "")...) {
		w, err := c.GetWeight("", "", mod)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 1, 1}, w, mod)
	}
}

func TestCorrectionWeights(t *testing.T) {
	c := compose(t, testParams(t), mcMeta(), []string{NamePileup, NameBTag}, weights.Nominal)

	assert.Equal(t, []string{
		"pileupDown", "pileupUp",
		"sf_btag_hfDown", "sf_btag_hfUp", "sf_btag_lfDown", "sf_btag_lfUp",
	}, c.InstalledModifiers("", ""))

	tests := []struct {
		modifier string
		want     []float64
	}{
		{"", []float64{0.5 * 1.0, 2.0 * 0.8, 2.0 * 0.8}},
		{"pileupUp", []float64{0.6 * 1.0, 2.2 * 0.8, 2.2 * 0.8}},
		{"sf_btag_hfDown", []float64{0.5 * 0.9, 2.0 * 0.7, 2.0 * 0.7}},
		{"sf_btag_lfUp", []float64{0.5 * 1.2, 2.0 * 1.0, 2.0 * 1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.modifier, func(t *testing.T) {
			w, err := c.GetWeight("", "", tt.modifier)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, w, 1e-12)
		})
	}
}

func TestShapeVariationIsNominalOnly(t *testing.T) {
	names := []string{NamePileup, NameBTag, "trigger", "kfactor"}
	c := compose(t, testParams(t), mcMeta(), names, "JESUp")
	assert.Empty(t, c.InstalledModifiers("", ""))

	_, err := c.GetWeight("", "", "pileupUp")
	assert.ErrorIs(t, err, weights.ErrUnknownModifier)
}

func TestConfiguredWeights(t *testing.T) {
	c := compose(t, testParams(t), mcMeta(), []string{"trigger", "kfactor"}, weights.Nominal)

	w, err := c.GetWeight("", "", "triggerDown")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.8 * 1.5, 0.9 * 1.5, 1.0 * 1.5}, w, 1e-12)

	w, err = c.GetWeight("", "", "kfactorUp")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.9 * 1.6, 0.95 * 1.6, 1.0 * 1.6}, w, 1e-12)
}

func TestBTagSources(t *testing.T) {
	params := Params{}
	got := BTagSources(params, weights.Metadata{Year: "2017"})
	assert.Equal(t, []string{
		"cferr1", "cferr2", "hf", "lf",
		"hfstats1_2017", "hfstats2_2017", "lfstats1_2017", "lfstats2_2017",
	}, got)

	params.BTagSources = map[string][]string{"2017": {"hf"}}
	assert.Equal(t, []string{"hf"}, BTagSources(params, weights.Metadata{Year: "2017"}))
}

func TestDefinitionErrors(t *testing.T) {
	tests := []struct {
		name   string
		params func(p *Params)
		meta   weights.Metadata
		weight string
	}{
		{"missing lumi year", func(p *Params) {}, weights.Metadata{Year: "2016", IsMC: true, SumGenWeights: 1}, NameLumi},
		{"zero sum of weights", func(p *Params) {}, weights.Metadata{Year: "2018", IsMC: true}, NameXS},
		{"no correction file", func(p *Params) { p.CorrectionFile = "" }, mcMeta(), NamePileup},
		{"unsupported btag source", func(p *Params) { p.BTagSources = map[string][]string{"2018": {"jes"}} }, mcMeta(), NameBTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParams(t)
			tt.params(&params)
			reg, err := NewRegistry(params)
			require.NoError(t, err)
			eng, err := weights.NewEngine(reg, weights.SampleScope{Inclusive: []string{tt.weight}}, tt.meta, weights.Options{})
			require.NoError(t, err)
			assert.Error(t, eng.NewComposer(testEvents(t), "").Compute())
		})
	}

	_, err := Definitions(Params{Columns: []ColumnWeight{{Name: "x", Nominal: "a", Up: "b"}}})
	assert.ErrorIs(t, err, ErrMissingParameter)
	_, err = Definitions(Params{Constants: []ConstantWeight{{Value: 1}}})
	assert.ErrorIs(t, err, ErrMissingParameter)
	_, err = NewRegistry(Params{BTagSources: map[string][]string{"2018": {}}})
	assert.ErrorIs(t, err, ErrMissingParameter)
}

func TestSharedLoader(t *testing.T) {
	loader, err := correction.NewLoader(4)
	require.NoError(t, err)
	params := testParams(t)
	params.Loader = loader

	compose(t, params, mcMeta(), []string{NamePileup}, "")
	compose(t, params, mcMeta(), []string{NameBTag}, "")
	assert.Equal(t, 1, loader.Len())
}
