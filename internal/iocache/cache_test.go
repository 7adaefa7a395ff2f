package iocache

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huangsam/weightflow/schema"
)

// resetManager restores the global manager between tests.
func resetManager(t *testing.T) {
	t.Helper()
	Manager = &CacheStoreManager{}
	initOnce = sync.Once{}
	closeOnce = sync.Once{}
	t.Cleanup(func() {
		CloseStores()
		Manager = &CacheStoreManager{}
		initOnce = sync.Once{}
		closeOnce = sync.Once{}
	})
}

func TestInitStores(t *testing.T) {
	t.Run("cache and runs", func(t *testing.T) {
		resetManager(t)
		dir := t.TempDir()
		cachePath := filepath.Join(dir, "cache.db")
		runPath := filepath.Join(dir, "runs.db")

		err := InitStores(schema.SQLiteBackend, cachePath, schema.SQLiteBackend, runPath)
		require.NoError(t, err)
		assert.NotNil(t, Manager.GetCacheStore())
		assert.NotNil(t, Manager.GetRunStore())

		CloseStores()
		for _, path := range []string{cachePath, runPath} {
			_, err := os.Stat(path)
			assert.NoError(t, err, "database file %s should exist", path)
		}
	})

	t.Run("disabled stores", func(t *testing.T) {
		resetManager(t)
		require.NoError(t, InitStores(schema.NoneBackend, "", "", ""))
		assert.Nil(t, Manager.GetCacheStore())
		assert.Nil(t, Manager.GetRunStore())
	})

	t.Run("idempotent", func(t *testing.T) {
		resetManager(t)
		path := filepath.Join(t.TempDir(), "cache.db")
		for range 3 {
			assert.NoError(t, InitStores(schema.SQLiteBackend, path, schema.NoneBackend, ""))
		}
		CloseStores()
		CloseStores()
	})

	t.Run("unreachable server", func(t *testing.T) {
		resetManager(t)
		err := InitStores(schema.MySQLBackend, "invalid://connection", "", "")
		assert.Error(t, err)
		assert.Nil(t, Manager.GetCacheStore())
	})
}

func TestCacheStoreOperations(t *testing.T) {
	newStore := func(t *testing.T) *CacheStoreImpl {
		store, err := NewCacheStore("test_table", schema.SQLiteBackend, ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	}

	t.Run("set and get", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set("key", []byte(`{"yields":[]}`), 1, 1234567890))

		value, version, ts, err := store.Get("key")
		require.NoError(t, err)
		assert.Equal(t, `{"yields":[]}`, string(value))
		assert.Equal(t, 1, version)
		assert.Equal(t, int64(1234567890), ts)
	})

	t.Run("upsert", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set("key", []byte("old"), 1, 1000))
		require.NoError(t, store.Set("key", []byte("new"), 2, 2000))

		value, version, ts, err := store.Get("key")
		require.NoError(t, err)
		assert.Equal(t, "new", string(value))
		assert.Equal(t, 2, version)
		assert.Equal(t, int64(2000), ts)
	})

	t.Run("missing key", func(t *testing.T) {
		store := newStore(t)
		_, _, _, err := store.Get("missing")
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})

	t.Run("status", func(t *testing.T) {
		store := newStore(t)
		status, err := store.GetStatus()
		require.NoError(t, err)
		assert.True(t, status.Connected)
		assert.Equal(t, 0, status.TotalEntries)

		require.NoError(t, store.Set("a", []byte("1"), 1, 1000))
		require.NoError(t, store.Set("b", []byte("2"), 1, 3000))
		status, err = store.GetStatus()
		require.NoError(t, err)
		assert.Equal(t, "sqlite", status.Backend)
		assert.Equal(t, 2, status.TotalEntries)
		assert.Equal(t, time.Unix(3000, 0), status.LastEntryTime)
		assert.Equal(t, time.Unix(1000, 0), status.OldestEntryTime)
		assert.Positive(t, status.TableSizeBytes)
	})

	t.Run("none backend", func(t *testing.T) {
		store, err := NewCacheStore("test_table", schema.NoneBackend, "")
		require.NoError(t, err)
		assert.NoError(t, store.Set("key", []byte("value"), 1, 1))
		_, _, _, err = store.Get("key")
		assert.ErrorIs(t, err, sql.ErrNoRows)

		status, err := store.GetStatus()
		require.NoError(t, err)
		assert.False(t, status.Connected)
		assert.NoError(t, store.Close())
	})
}

func TestNewCacheStoreErrors(t *testing.T) {
	tests := []struct {
		name      string
		tableName string
		backend   schema.DatabaseBackend
	}{
		{"invalid table name", "drop table;", schema.SQLiteBackend},
		{"unknown backend", "weightflow_cache", schema.DatabaseBackend("oracle")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCacheStore(tt.tableName, tt.backend, ":memory:")
			assert.Error(t, err)
		})
	}
}

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name      string
		tableName string
		wantErr   bool
	}{
		{"simple", "weightflow_cache", false},
		{"leading underscore", "_cache", false},
		{"digits", "cache2", false},
		{"empty", "", true},
		{"leading digit", "1cache", true},
		{"space", "my cache", true},
		{"quote", `cache"`, true},
		{"semicolon", "cache;DROP", true},
		{"too long", strings.Repeat("a", 65), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTableName(tt.tableName)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQueryBuilders(t *testing.T) {
	tests := []struct {
		backend     schema.DatabaseBackend
		quoted      string
		placeholder string
		upsert      string
		create      string
		driver      string
	}{
		{schema.SQLiteBackend, `"t"`, "?", "INSERT OR REPLACE", "BLOB", "sqlite"},
		{schema.MySQLBackend, "`t`", "?", "ON DUPLICATE KEY UPDATE", "LONGBLOB", "mysql"},
		{schema.PostgreSQLBackend, `"t"`, "$1", "ON CONFLICT (cache_key)", "BYTEA", "pgx"},
	}
	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			store := &CacheStoreImpl{tableName: "t", backend: tt.backend}
			assert.Equal(t, tt.quoted, quoteTableName("t", tt.backend))
			assert.Equal(t, tt.placeholder, store.getPlaceholder())
			assert.Contains(t, store.getUpsertQuery(), tt.upsert)
			assert.Contains(t, store.getUpsertQuery(), tt.quoted)
			assert.Contains(t, getCreateTableQuery("t", tt.backend), tt.create)
			assert.Equal(t, tt.driver, driverFor(tt.backend))
		})
	}
}

func TestClearCache(t *testing.T) {
	t.Run("sqlite removes file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache.db")
		store, err := NewCacheStore(cacheTable, schema.SQLiteBackend, path)
		require.NoError(t, err)
		require.NoError(t, store.Close())

		require.NoError(t, ClearCache(schema.SQLiteBackend, path, ""))
		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("sqlite missing file", func(t *testing.T) {
		assert.NoError(t, ClearCache(schema.SQLiteBackend, filepath.Join(t.TempDir(), "missing.db"), ""))
	})

	t.Run("sqlite without path", func(t *testing.T) {
		assert.Error(t, ClearCache(schema.SQLiteBackend, "", ""))
	})

	t.Run("none backend", func(t *testing.T) {
		assert.NoError(t, ClearCache(schema.NoneBackend, "", ""))
	})

	t.Run("unknown backend", func(t *testing.T) {
		assert.Error(t, ClearRuns(schema.DatabaseBackend("oracle"), "", ""))
	})
}

func TestCacheStoreManagerConcurrency(t *testing.T) {
	resetManager(t)
	require.NoError(t, InitStores(schema.SQLiteBackend, ":memory:", "", ""))

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Go(func() {
			store := Manager.GetCacheStore()
			if assert.NotNil(t, store) {
				assert.NoError(t, store.Set("concurrent_key", []byte("value"), 1, int64(1000+i)))
			}
		})
	}
	wg.Wait()

	_, version, _, err := Manager.GetCacheStore().Get("concurrent_key")
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}
