package iocache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wfparquet "github.com/huangsam/weightflow/internal/parquet"
	"github.com/huangsam/weightflow/schema"
)

var testYields = []schema.Yield{
	{Sample: "ttbar", Category: "", Subsample: "", Variation: "nominal", SumW: 25, SumW2: 225, Entries: 6},
	{Sample: "ttbar", Category: "SR", Subsample: "", Variation: "nominal", SumW: 12.5, SumW2: 50, Entries: 4},
	{Sample: "ttbar", Category: "SR", Subsample: "", Variation: "trigger_sfUp", SumW: 14, SumW2: 60, Entries: 4},
}

func newTestRunStore(t *testing.T) *RunStoreImpl {
	t.Helper()
	store, err := NewRunStore(schema.SQLiteBackend, filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunStoreLifecycle(t *testing.T) {
	store := newTestRunStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	runID, err := store.BeginRun(start, map[string]any{"workers": 4, "samples": []string{"ttbar"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), runID)

	require.NoError(t, store.RecordYields(runID, testYields))
	require.NoError(t, store.EndRun(runID, start.Add(1500*time.Millisecond), 1, 3, 6))

	runs, err := store.GetAllRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.True(t, start.Equal(run.StartTime))
	require.NotNil(t, run.EndTime)
	require.NotNil(t, run.RunDurationMs)
	assert.Equal(t, int64(1500), *run.RunDurationMs)
	assert.Equal(t, int32(1), run.TotalSamples)
	assert.Equal(t, int32(3), run.TotalChunks)
	assert.Equal(t, int64(6), run.TotalEvents)

	var params map[string]any
	require.NotNil(t, run.ConfigParams)
	require.NoError(t, json.Unmarshal([]byte(*run.ConfigParams), &params))
	assert.Equal(t, float64(4), params["workers"])

	yields, err := store.GetAllYields()
	require.NoError(t, err)
	require.Len(t, yields, len(testYields))
	for i, y := range yields {
		assert.Equal(t, runID, y.RunID)
		assert.Equal(t, testYields[i], y.Yield)
	}

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, 1, status.TotalRuns)
	assert.Equal(t, runID, status.LastRunID)
	assert.Equal(t, int64(6), status.TotalEvents)
	assert.Equal(t, int64(1), status.TableSizes[runsTable])
	assert.Equal(t, int64(3), status.TableSizes[yieldsTable])
}

func TestRunStoreUnfinishedRun(t *testing.T) {
	store := newTestRunStore(t)
	_, err := store.BeginRun(time.Now(), nil)
	require.NoError(t, err)

	runs, err := store.GetAllRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Nil(t, runs[0].EndTime)
	assert.Nil(t, runs[0].RunDurationMs)
}

func TestRunStoreDuplicateYield(t *testing.T) {
	store := newTestRunStore(t)
	runID, err := store.BeginRun(time.Now(), nil)
	require.NoError(t, err)

	err = store.RecordYields(runID, append(testYields, testYields[0]))
	assert.Error(t, err)

	// The failed batch is rolled back as a whole
	yields, err := store.GetAllYields()
	require.NoError(t, err)
	assert.Empty(t, yields)
}

func TestRunStoreNoneBackend(t *testing.T) {
	store, err := NewRunStore(schema.NoneBackend, "")
	require.NoError(t, err)

	runID, err := store.BeginRun(time.Now(), nil)
	require.NoError(t, err)
	assert.Zero(t, runID)
	assert.NoError(t, store.RecordYields(runID, testYields))
	assert.NoError(t, store.EndRun(runID, time.Now(), 1, 1, 1))

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.NoError(t, store.Close())
}

func TestMigrateRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	require.NoError(t, MigrateRuns(schema.SQLiteBackend, path, 1))
	db, err := openDB(schema.SQLiteBackend, path, "")
	require.NoError(t, err)
	res, err := applyMigrations(db, schema.SQLiteBackend, -1)
	require.NoError(t, err)
	assert.Equal(t, migrationResult{from: 1, to: 2, changed: true}, res)

	res, err = applyMigrations(db, schema.SQLiteBackend, -1)
	require.NoError(t, err)
	assert.False(t, res.changed)
	require.NoError(t, db.Close())

	// Rolling back drops both tables
	require.NoError(t, MigrateRuns(schema.SQLiteBackend, path, 0))
	db, err = openDB(schema.SQLiteBackend, path, "")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'weightflow_%' AND name != ?`, migrationsTable).Scan(&count))
	assert.Zero(t, count)

	assert.Error(t, MigrateRuns(schema.NoneBackend, "", -1))
}

func TestExportRuns(t *testing.T) {
	store := newTestRunStore(t)
	runID, err := store.BeginRun(time.Now(), map[string]any{"workers": 1})
	require.NoError(t, err)
	require.NoError(t, store.RecordYields(runID, testYields))
	require.NoError(t, store.EndRun(runID, time.Now(), 1, 3, 6))

	prefix := filepath.Join(t.TempDir(), "export")
	require.NoError(t, ExportRuns(store, prefix))

	runs, err := parquet.ReadFile[wfparquet.Run](wfparquet.RunsFile(prefix))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(6), runs[0].TotalEvents)

	yields, err := parquet.ReadFile[wfparquet.Yield](wfparquet.YieldsFile(prefix))
	require.NoError(t, err)
	assert.Len(t, yields, len(testYields))
}

func TestExportRunsErrors(t *testing.T) {
	store := newTestRunStore(t)
	assert.Error(t, ExportRuns(store, ""), "output file is required")
	assert.Error(t, ExportRuns(store, filepath.Join(t.TempDir(), "empty")), "nothing to export")

	resetManager(t)
	assert.Error(t, ExecuteRunsExport("out"), "run tracking disabled")
}

func TestClearRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := NewRunStore(schema.SQLiteBackend, path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	require.NoError(t, ClearRuns(schema.SQLiteBackend, path, ""))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
