package cmd

import (
	"fmt"

	"github.com/huangsam/weightflow/internal/contract"
	"github.com/huangsam/weightflow/internal/iocache"
	"github.com/huangsam/weightflow/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runBackendConfig reads and validates the run tracking backend settings.
func runBackendConfig() (schema.DatabaseBackend, string, error) {
	if err := loadConfigFile(); err != nil {
		return "", "", err
	}

	backend, err := contract.ParseBackend(viper.GetString("run-backend"), schema.NoneBackend)
	if err != nil {
		return "", "", err
	}
	connStr := viper.GetString("run-db-connect")

	// Basic validation for database backends
	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return "", "", err
	}
	return backend, connStr, nil
}

// runsSetup loads minimal configuration needed for run store operations.
// This is used by commands that need run access without full shared setup.
func runsSetup() error {
	backend, connStr, err := runBackendConfig()
	if err != nil {
		return err
	}

	// Initialize stores with the loaded config (no cache for runs commands)
	if err := iocache.InitStores(schema.NoneBackend, "", backend, connStr); err != nil {
		return fmt.Errorf("failed to initialize run tracking: %w", err)
	}

	cfg.RunBackend = backend
	cfg.RunDBConnect = connStr
	cfg.OutputFile = viper.GetString("output-file")

	return nil
}

// runsSetupWrapper wraps runsSetup to provide PreRunE for runs commands.
func runsSetupWrapper(_ *cobra.Command, _ []string) error {
	return runsSetup()
}

// runsMigrateSetup loads minimal configuration needed for migrate operations.
// It does NOT initialize stores, so migrations can run on a fresh database.
func runsMigrateSetup(_ *cobra.Command, _ []string) error {
	backend, connStr, err := runBackendConfig()
	if err != nil {
		return err
	}

	// For SQLite backend with empty connection string, use default path
	if backend == schema.SQLiteBackend && connStr == "" {
		connStr = contract.GetRunDBFilePath()
	}

	cfg.RunBackend = backend
	cfg.RunDBConnect = connStr

	return nil
}

// runsCmd focused on run tracking data management.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage tracked composition runs and exports",
	Long: `Manage the history of composition runs.

When a run backend is configured, every yields command records:
- Run metadata (timestamp, options, duration)
- Totals of samples, chunks and events processed
- Every yield it produced

Supported backends: SQLite, MySQL, PostgreSQL, or None (default, disabled)

Subcommands:
  status  - Show run tracking statistics
  export  - Export runs and yields to Parquet
  clear   - Remove all tracking data
  migrate - Run database schema migrations

Examples:
  # Check tracking status
  weightflow runs status --run-backend sqlite

  # Export for analysis in pandas/DuckDB
  weightflow runs export --run-backend sqlite --output-file history.parquet`,
}

// runsClearCmd clears the run data.
var runsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all tracked runs and yields",
	Long: `Delete all stored runs and their yields.

WARNING: This action cannot be undone. Consider exporting data first.

Examples:
  # Export before clearing
  weightflow runs export --output-file backup.parquet
  weightflow runs clear`,
	PreRunE: runsSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		// Release the SQLite file before it is removed
		iocache.CloseStores()
		dbFile := sqliteFile(cfg.RunDBConnect, contract.GetRunDBFilePath())
		if err := iocache.ClearRuns(cfg.RunBackend, dbFile, cfg.RunDBConnect); err != nil {
			contract.LogFatal("Failed to clear run data", err)
		}
		fmt.Println("Run data cleared successfully.")
	},
}

// runsStatusCmd shows run tracking status.
var runsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display run tracking statistics and connection details",
	Long: `Show detailed information about run tracking.

Displays:
- Backend type and connection status
- Total number of runs stored and the last run ID
- Last and oldest run timestamps
- Total events processed across all runs
- Row counts per table

Examples:
  # Check run tracking status
  weightflow runs status`,
	PreRunE: runsSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		store := iocache.Manager.GetRunStore()
		if store == nil {
			iocache.PrintRunStatus(schema.RunStatus{Backend: string(cfg.RunBackend)})
			return
		}
		status, err := store.GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get run status", err)
		}
		iocache.PrintRunStatus(status)
	},
}

// runsExportCmd exports run data to Parquet files.
var runsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tracked runs and yields to Parquet",
	Long: `Export all stored runs and yields to Parquet files.

Writes two files next to the given --output-file prefix:
- <prefix>.runs.parquet   - one row per run
- <prefix>.yields.parquet - one row per recorded yield

Requires: --output-file parameter

Examples:
  # Export all data
  weightflow runs export --output-file history.parquet

  # Query with DuckDB
  duckdb -c "SELECT sample, variation, sum(sumw) FROM read_parquet('history.yields.parquet') GROUP BY ALL"`,
	PreRunE: runsSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iocache.ExecuteRunsExport(cfg.OutputFile); err != nil {
			contract.LogFatal("Failed to export run data", err)
		}
	},
}

// runsMigrateCmd runs database migrations for the run store.
var runsMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations (upgrades/downgrades)",
	Long: `Manage database schema versions for the run tracking store.

By default, migrates to the latest version. Use --target-version for specific versions.

Examples:
  # Migrate to latest version (default)
  weightflow runs migrate --run-backend postgresql

  # Rollback to the initial state
  weightflow runs migrate --run-backend postgresql --target-version 0`,
	PreRunE: runsMigrateSetup,
	Run: func(_ *cobra.Command, _ []string) {
		targetVersion := viper.GetInt("target-version")
		if err := iocache.MigrateRuns(cfg.RunBackend, cfg.RunDBConnect, targetVersion); err != nil {
			contract.LogFatal("Failed to run migrations", err)
		}
	},
}
