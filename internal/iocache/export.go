package iocache

import (
	"errors"
	"fmt"

	"github.com/huangsam/weightflow/internal/contract"
	"github.com/huangsam/weightflow/internal/parquet"
	"github.com/huangsam/weightflow/schema"
)

// RunExporter is a RunStore whose full history can be read back.
type RunExporter interface {
	contract.RunStore
	GetAllRuns() ([]schema.RunRecord, error)
	GetAllYields() ([]schema.YieldRecord, error)
}

var _ RunExporter = &RunStoreImpl{} // Compile-time check

// ExecuteRunsExport exports the run history of the global manager to Parquet files.
func ExecuteRunsExport(outputFile string) error {
	store, ok := Manager.GetRunStore().(RunExporter)
	if !ok {
		return errors.New("run tracking is disabled. Set --run-backend to export runs")
	}
	return ExportRuns(store, outputFile)
}

// ExportRuns writes every run and every recorded yield next to outputFile,
// as <prefix>.runs.parquet and <prefix>.yields.parquet.
func ExportRuns(store RunExporter, outputFile string) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}

	status, err := store.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get run status: %w", err)
	}
	if status.TotalRuns == 0 {
		return errors.New("no runs found to export")
	}

	fmt.Printf("Exporting data from %s backend...\n", status.Backend)
	fmt.Printf("Total runs: %d\n", status.TotalRuns)
	fmt.Printf("Total yield records: %d\n", status.TableSizes[yieldsTable])

	runs, err := store.GetAllRuns()
	if err != nil {
		return fmt.Errorf("failed to retrieve runs: %w", err)
	}
	yields, err := store.GetAllYields()
	if err != nil {
		return fmt.Errorf("failed to retrieve yields: %w", err)
	}

	runsFile := parquet.RunsFile(outputFile)
	if err := parquet.WriteRunsParquet(parquet.ConvertRunRecords(runs), runsFile); err != nil {
		return fmt.Errorf("failed to write runs: %w", err)
	}
	fmt.Printf("Exported %d runs to: %s\n", len(runs), runsFile)

	yieldsFile := parquet.YieldsFile(outputFile)
	if err := parquet.WriteYieldsParquet(parquet.ConvertYieldRecords(yields), yieldsFile); err != nil {
		return fmt.Errorf("failed to write yields: %w", err)
	}
	fmt.Printf("Exported %d yields to: %s\n", len(yields), yieldsFile)

	return nil
}
