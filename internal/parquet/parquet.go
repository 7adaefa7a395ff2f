// Package parquet provides data structures and functions for exporting
// weightflow yields and run history to Parquet files using
// github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/huangsam/weightflow/schema"
)

// Run represents a single yields run with metadata.
// This struct maps to the weightflow_runs database table.
type Run struct {
	RunID         int64      `parquet:"run_id,snappy"`
	StartTime     time.Time  `parquet:"start_time,snappy"`
	EndTime       *time.Time `parquet:"end_time,optional,snappy"`
	RunDurationMs *int64     `parquet:"run_duration_ms,optional,snappy"`
	TotalSamples  int32      `parquet:"total_samples,snappy"`
	TotalChunks   int32      `parquet:"total_chunks,snappy"`
	TotalEvents   int64      `parquet:"total_events,snappy"`

	// ConfigParams contains the JSON-encoded run options (nullable)
	ConfigParams *string `parquet:"config_params,optional,snappy"`
}

// Yield is one weighted yield. RunID is zero for yields that were not tracked.
type Yield struct {
	RunID     int64   `parquet:"run_id,snappy"`
	Sample    string  `parquet:"sample,dict,snappy"`
	Category  string  `parquet:"category,dict,snappy"`
	Subsample string  `parquet:"subsample,dict,snappy"`
	Variation string  `parquet:"variation,dict,snappy"`
	SumW      float64 `parquet:"sumw,snappy"`
	SumW2     float64 `parquet:"sumw2,snappy"`
	Entries   int64   `parquet:"entries,snappy"`
}

// Modifier is one (sample, category, subsample, modifier) availability row.
type Modifier struct {
	Sample    string `parquet:"sample,dict,snappy"`
	Category  string `parquet:"category,dict,snappy"`
	Subsample string `parquet:"subsample,dict,snappy"`
	Modifier  string `parquet:"modifier,snappy"`
}

// Write encodes rows to w using the schema inferred from T.
func Write[T any](w io.Writer, rows []T) error {
	writer := parquet.NewGenericWriter[T](w)
	if _, err := writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// writeFile creates outputPath and writes rows to it.
func writeFile[T any](rows []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := Write(file, rows); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// WriteRunsParquet writes runs to a Parquet file.
func WriteRunsParquet(data []Run, outputPath string) error {
	return writeFile(data, outputPath)
}

// WriteYieldsParquet writes yields to a Parquet file.
func WriteYieldsParquet(data []Yield, outputPath string) error {
	return writeFile(data, outputPath)
}

// ConvertRunRecords converts stored runs for Parquet export.
func ConvertRunRecords(records []schema.RunRecord) []Run {
	result := make([]Run, len(records))
	for i, r := range records {
		result[i] = Run{
			RunID:         r.RunID,
			StartTime:     r.StartTime,
			EndTime:       r.EndTime,
			RunDurationMs: r.RunDurationMs,
			TotalSamples:  r.TotalSamples,
			TotalChunks:   r.TotalChunks,
			TotalEvents:   r.TotalEvents,
			ConfigParams:  r.ConfigParams,
		}
	}
	return result
}

// ConvertYieldRecords converts stored yields for Parquet export.
func ConvertYieldRecords(records []schema.YieldRecord) []Yield {
	result := make([]Yield, len(records))
	for i, r := range records {
		result[i] = fromYield(r.RunID, r.Yield)
	}
	return result
}

// ConvertYields converts yields of a run that was not tracked.
func ConvertYields(yields []schema.Yield) []Yield {
	result := make([]Yield, len(yields))
	for i, y := range yields {
		result[i] = fromYield(0, y)
	}
	return result
}

// ConvertModifiers flattens an availability report to one row per modifier.
// Scopes without modifiers keep a single row with an empty modifier.
func ConvertModifiers(output *schema.ModifiersOutput) []Modifier {
	var result []Modifier
	for _, row := range output.Scopes {
		if len(row.Modifiers) == 0 {
			result = append(result, Modifier{Sample: row.Sample, Category: row.Category, Subsample: row.Subsample})
			continue
		}
		for _, m := range row.Modifiers {
			result = append(result, Modifier{Sample: row.Sample, Category: row.Category, Subsample: row.Subsample, Modifier: m})
		}
	}
	return result
}

// RunsFile names the runs file of an export with the given prefix.
func RunsFile(prefix string) string {
	return strings.TrimSuffix(prefix, ".parquet") + ".runs.parquet"
}

// YieldsFile names the yields file of an export with the given prefix.
func YieldsFile(prefix string) string {
	return strings.TrimSuffix(prefix, ".parquet") + ".yields.parquet"
}

func fromYield(runID int64, y schema.Yield) Yield {
	return Yield{
		RunID:     runID,
		Sample:    y.Sample,
		Category:  y.Category,
		Subsample: y.Subsample,
		Variation: y.Variation,
		SumW:      y.SumW,
		SumW2:     y.SumW2,
		Entries:   y.Entries,
	}
}
