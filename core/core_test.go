package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/huangsam/weightflow/core/events"
	"github.com/huangsam/weightflow/core/weights"
	"github.com/huangsam/weightflow/internal/contract"
	"github.com/huangsam/weightflow/internal/iocache"
	"github.com/huangsam/weightflow/schema"
)

const testAnalysis = `
categories:
  SR: [{column: njets, min: 4}]
  CR: [{column: njets, max: 4}]
subsamples:
  ttbb: [{column: genTtbarId, min: 51}]
samples:
  ttbar:
    files: [ttbar.parquet]
    year: "2018"
    is_mc: true
    xsection: 2
    sum_gen_weights: 4
    subsamples: [ttbb]
    weights:
      inclusive: [genWeight, lumi, XS]
      is_split_by_category: true
      by_category:
        SR: [trigger_sf]
      by_subsample:
        ttbb:
          inclusive: [kfactor]
      external:
        trigger_sf: {has_variations: true}
  data:
    files: [data.parquet]
    year: "2018"
    weights:
      inclusive: [genWeight, lumi, XS]
parameters:
  lumi: {"2018": 10}
  constant_weights:
    - {name: kfactor, value: 1.5, up: 2.0, down: 1.0}
shape_variations:
  JESUp: {njets: njets_JESUp}
`

type mcEvent struct {
	GenWeight float64 `parquet:"genWeight"`
	NJets     float64 `parquet:"njets"`
	NJetsUp   float64 `parquet:"njets_JESUp"`
	GenID     float64 `parquet:"genTtbarId"`
	Trig      float64 `parquet:"trigger_sf"`
	TrigUp    float64 `parquet:"trigger_sfUp"`
	TrigDown  float64 `parquet:"trigger_sfDown"`
}

type dataEvent struct {
	NJets float64 `parquet:"njets"`
}

var mcEvents = []mcEvent{
	{1, 5, 6, 0, 0.9, 1.0, 0.8},
	{1, 2, 4, 55, 0.9, 1.0, 0.8},
	{2, 4, 3, 55, 0.8, 0.9, 0.7},
	{-1, 6, 6, 0, 1.0, 1.0, 1.0},
	{1, 3, 3, 0, 0.5, 0.6, 0.4},
	{1, 4, 5, 60, 1.0, 1.0, 1.0},
}

func writeRows[T any](t *testing.T, path string, rows []T) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[T](f)
	_, err = w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

// setupAnalysis writes the events and the analysis file into a temp dir.
func setupAnalysis(t *testing.T, content string) *contract.Config {
	t.Helper()
	dir := t.TempDir()
	writeRows(t, filepath.Join(dir, "ttbar.parquet"), mcEvents)
	writeRows(t, filepath.Join(dir, "data.parquet"), []dataEvent{{5}, {2}, {4}})

	path := filepath.Join(dir, "analysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	analysis, err := contract.LoadAnalysis(path)
	require.NoError(t, err)

	return &contract.Config{
		AnalysisPath: path,
		Analysis:     analysis,
		Workers:      2,
		ChunkSize:    2,
		Precision:    3,
		Output:       schema.TextOut,
	}
}

func findYield(t *testing.T, yields []schema.Yield, sample, category, subsample, variation string) schema.Yield {
	t.Helper()
	for _, y := range yields {
		if y.Sample == sample && y.Category == category && y.Subsample == subsample && y.Variation == variation {
			return y
		}
	}
	require.Failf(t, "yield not found", "%s/%s/%s/%s", sample, category, subsample, variation)
	return schema.Yield{}
}

func TestComputeYields(t *testing.T) {
	cfg := setupAnalysis(t, testAnalysis)
	ctx := withSuppressHeader(context.Background())

	output, err := ComputeYields(ctx, cfg, nil)
	require.NoError(t, err)
	assert.False(t, output.Cached)
	assert.Equal(t, int64(9), output.TotalEvents())

	tests := []struct {
		name                                   string
		sample, category, subsample, variation string
		sumw                                   float64
		entries                                int64
	}{
		{"inclusive", "ttbar", "", "", "nominal", 25, 6},
		{"signal region", "ttbar", "SR", "", "nominal", 12.5, 4},
		{"signal region trigger up", "ttbar", "SR", "", "trigger_sfUp", 14, 4},
		{"signal region trigger down", "ttbar", "SR", "", "trigger_sfDown", 11, 4},
		{"control region", "ttbar", "CR", "", "nominal", 10, 2},
		{"subsample", "ttbar", "", "ttbb", "nominal", 30, 3},
		{"subsample kfactor up", "ttbar", "", "ttbb", "kfactorUp", 40, 3},
		{"subsample kfactor down", "ttbar", "", "ttbb", "kfactorDown", 20, 3},
		{"category and subsample", "ttbar", "SR", "ttbb", "nominal", 19.5, 2},
		{"category and subsample kfactor up", "ttbar", "SR", "ttbb", "kfactorUp", 26, 2},
		{"category and subsample trigger up", "ttbar", "SR", "ttbb", "trigger_sfUp", 21, 2},
		{"shape variation", "ttbar", "SR", "", "JESUp", 9, 4},
		{"shape variation inclusive", "ttbar", "", "", "JESUp", 25, 6},
		{"data inclusive", "data", "", "", "nominal", 3, 3},
		{"data signal region", "data", "SR", "", "nominal", 2, 2},
		{"data control region", "data", "CR", "", "nominal", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := findYield(t, output.Yields, tt.sample, tt.category, tt.subsample, tt.variation)
			assert.InDelta(t, tt.sumw, y.SumW, 1e-9)
			assert.Equal(t, tt.entries, y.Entries)
		})
	}

	// Inclusive sumw2 for weights 5*genWeight
	y := findYield(t, output.Yields, "ttbar", "", "", "nominal")
	assert.InDelta(t, 225, y.SumW2, 1e-9)

	// No shape variation and no weight modifiers for data
	for _, y := range output.Yields {
		if y.Sample == "data" {
			assert.Equal(t, "nominal", y.Variation)
		}
	}

	// Summaries follow the sample order
	require.Len(t, output.Samples, 2)
	assert.Equal(t, schema.SampleSummary{Sample: "data", Files: 1, Chunks: 2, Events: 3}, output.Samples[0])
	assert.Equal(t, schema.SampleSummary{Sample: "ttbar", Files: 1, Chunks: 3, Events: 6}, output.Samples[1])
}

func TestComputeYieldsNominalOnly(t *testing.T) {
	cfg := setupAnalysis(t, testAnalysis)
	cfg.NominalOnly = true

	output, err := ComputeYields(withSuppressHeader(context.Background()), cfg, nil)
	require.NoError(t, err)
	for _, y := range output.Yields {
		assert.Equal(t, "nominal", y.Variation)
	}
}

func TestComputeYieldsDeterministic(t *testing.T) {
	ctx := withSuppressHeader(context.Background())
	var reference []schema.Yield
	for _, workers := range []int{1, 2, 8} {
		cfg := setupAnalysis(t, testAnalysis)
		cfg.Workers = workers
		cfg.ChunkSize = 1

		output, err := ComputeYields(ctx, cfg, nil)
		require.NoError(t, err)
		if reference == nil {
			reference = output.Yields
			continue
		}
		assert.Equal(t, reference, output.Yields, "workers=%d", workers)
	}
}

func TestComputeYieldsErrors(t *testing.T) {
	ctx := withSuppressHeader(context.Background())

	t.Run("missing external column", func(t *testing.T) {
		cfg := setupAnalysis(t, testAnalysis)
		sample, ok := cfg.Analysis.Sample("ttbar")
		require.True(t, ok)
		sample.Scope.Inclusive = append(sample.Scope.Inclusive, "missing_sf")
		sample.Scope.External["missing_sf"] = cfg.Analysis.Samples[1].Scope.External["trigger_sf"]
		cfg.Analysis.Samples[1] = sample

		_, err := ComputeYields(ctx, cfg, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, events.ErrMissingColumn)
	})

	t.Run("external in subsample scope", func(t *testing.T) {
		cfg := setupAnalysis(t, testAnalysis)
		sample := cfg.Analysis.Samples[1]
		spec := sample.Scope.BySubsample["ttbb"]
		spec.Inclusive = append(spec.Inclusive, "trigger_sf")
		sample.Scope.BySubsample["ttbb"] = spec

		_, err := ComputeYields(ctx, cfg, nil)
		assert.ErrorIs(t, err, ErrUnsupportedExternal)
	})

	t.Run("external shadows registered contributor", func(t *testing.T) {
		cfg := setupAnalysis(t, testAnalysis)
		cfg.Analysis.Samples[1].Scope.External["genWeight"] = cfg.Analysis.Samples[1].Scope.External["trigger_sf"]

		_, err := ComputeYields(ctx, cfg, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, weights.ErrExternalRegistered)
		assert.NotContains(t, err.Error(), "at event")
	})

	t.Run("missing input file", func(t *testing.T) {
		cfg := setupAnalysis(t, testAnalysis)
		cfg.Analysis.Samples[0].Files = []string{filepath.Join(t.TempDir(), "missing.parquet")}

		_, err := ComputeYields(ctx, cfg, nil)
		assert.Error(t, err)
	})

	t.Run("canceled context", func(t *testing.T) {
		cfg := setupAnalysis(t, testAnalysis)
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := ComputeYields(canceled, cfg, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("no samples", func(t *testing.T) {
		_, err := ComputeYields(ctx, &contract.Config{}, nil)
		assert.Error(t, err)
	})
}

func TestRunTracking(t *testing.T) {
	cfg := setupAnalysis(t, testAnalysis)
	ctx := withSuppressHeader(context.Background())

	mgr := &iocache.MockCacheManager{}
	runStore := &iocache.MockRunStore{}
	mgr.On("GetCacheStore").Return(nil)
	mgr.On("GetRunStore").Return(runStore)
	runStore.On("BeginRun", mock.AnythingOfType("time.Time"), mock.Anything).Return(int64(7), nil)
	runStore.On("RecordYields", int64(7), mock.Anything).Return(nil)
	runStore.On("EndRun", int64(7), mock.AnythingOfType("time.Time"), 2, 5, int64(9)).Return(nil)

	output, err := ComputeYields(ctx, cfg, mgr)
	require.NoError(t, err)
	assert.NotEmpty(t, output.Yields)

	mgr.AssertExpectations(t)
	runStore.AssertExpectations(t)
}

func TestResultsCache(t *testing.T) {
	cfg := setupAnalysis(t, testAnalysis)
	ctx := withSuppressHeader(context.Background())

	var stored []byte
	store := &iocache.MockCacheStore{}
	store.On("Get", mock.Anything).Return([]byte(nil), 0, int64(0), sql.ErrNoRows).Once()
	store.On("Set", mock.Anything, mock.Anything, currentCacheVersion, mock.AnythingOfType("int64")).
		Run(func(args mock.Arguments) { stored = args.Get(1).([]byte) }).
		Return(nil).Once()

	mgr := &iocache.MockCacheManager{}
	mgr.On("GetCacheStore").Return(store)
	mgr.On("GetRunStore").Return(nil)

	first, err := ComputeYields(ctx, cfg, mgr)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.NotEmpty(t, stored)

	store.On("Get", mock.Anything).Return(stored, currentCacheVersion, time.Now().Unix(), nil).Once()
	second, err := ComputeYields(ctx, cfg, mgr)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Yields, second.Yields)

	store.AssertExpectations(t)
}

func TestCheckCacheHit(t *testing.T) {
	data, err := json.Marshal(schema.YieldsOutput{Yields: []schema.Yield{{Sample: "ttbar", SumW: 1}}})
	require.NoError(t, err)
	now := time.Now().Unix()

	tests := []struct {
		name    string
		data    []byte
		version int
		ts      int64
		err     error
		hit     bool
	}{
		{"valid entry", data, currentCacheVersion, now, nil, true},
		{"missing entry", nil, 0, 0, sql.ErrNoRows, false},
		{"stale entry", data, currentCacheVersion, now - int64((8 * 24 * time.Hour).Seconds()), nil, false},
		{"old version", data, currentCacheVersion + 1, now, nil, false},
		{"corrupt data", []byte("{"), currentCacheVersion, now, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &iocache.MockCacheStore{}
			store.On("Get", "key").Return(tt.data, tt.version, tt.ts, tt.err)
			result := checkCacheHit(store, "key")
			if tt.hit {
				require.NotNil(t, result)
				assert.Equal(t, "ttbar", result.Yields[0].Sample)
			} else {
				assert.Nil(t, result)
			}
		})
	}
}

func TestGenerateCacheKey(t *testing.T) {
	cfg := setupAnalysis(t, testAnalysis)

	key, err := generateCacheKey(cfg)
	require.NoError(t, err)
	assert.Len(t, key, 64)

	again, err := generateCacheKey(cfg)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	cfg.NominalOnly = true
	changed, err := generateCacheKey(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, key, changed)

	cfg.Analysis.Samples[0].Files = []string{filepath.Join(t.TempDir(), "missing.parquet")}
	_, err = generateCacheKey(cfg)
	assert.Error(t, err)
}

func TestBuildModifiers(t *testing.T) {
	cfg := setupAnalysis(t, testAnalysis)

	output, err := BuildModifiers(cfg)
	require.NoError(t, err)

	scopes := map[[3]string][]string{}
	for _, row := range output.Scopes {
		scopes[[3]string{row.Sample, row.Category, row.Subsample}] = row.Modifiers
	}
	assert.Empty(t, scopes[[3]string{"ttbar", "", ""}])
	assert.Equal(t, []string{"trigger_sfDown", "trigger_sfUp"}, scopes[[3]string{"ttbar", "SR", ""}])
	assert.Equal(t, []string{"kfactorDown", "kfactorUp", "trigger_sfDown", "trigger_sfUp"}, scopes[[3]string{"ttbar", "SR", "ttbb"}])
	assert.Equal(t, []string{"kfactorDown", "kfactorUp"}, scopes[[3]string{"ttbar", "", "ttbb"}])
	assert.Contains(t, scopes, [3]string{"data", "", ""})

	weightsBySample := map[string][]string{}
	for _, w := range output.Weights {
		weightsBySample[w.Sample] = append(weightsBySample[w.Sample], w.Weight)
	}
	assert.Equal(t, []string{"XS", "genWeight", "kfactor", "lumi", "trigger_sf"}, weightsBySample["ttbar"])
	assert.Equal(t, []string{"XS", "genWeight", "lumi"}, weightsBySample["data"])
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.False(t, shouldSuppressHeader(ctx))
	_, ok := getRunID(ctx)
	assert.False(t, ok)

	ctx = WithSuppressHeader(withRunID(ctx, 42))
	assert.True(t, shouldSuppressHeader(ctx))
	id, ok := getRunID(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}
