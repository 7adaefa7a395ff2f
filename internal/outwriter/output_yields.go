package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/huangsam/weightflow/internal/contract"
	"github.com/huangsam/weightflow/internal/parquet"
	"github.com/huangsam/weightflow/schema"
)

// writeJSONYields writes the yields with their statistical errors and relative shifts.
func writeJSONYields(w io.Writer, output *schema.YieldsOutput) error {
	type jsonYieldsOutput struct {
		Yields  []schema.EnrichedYield `json:"yields"`
		Samples []schema.SampleSummary `json:"samples"`
		Cached  bool                   `json:"cached"`
	}
	return writeJSON(w, jsonYieldsOutput{
		Yields:  schema.EnrichYields(output.Yields),
		Samples: output.Samples,
		Cached:  output.Cached,
	})
}

// writeCSVYields writes one row per yield.
func writeCSVYields(w io.Writer, yields []schema.Yield, fmtFloat func(float64) string) error {
	header := []string{"sample", "category", "subsample", "variation", "sumw", "sumw2", "error", "entries", "rel_delta"}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, y := range schema.EnrichYields(yields) {
			delta := ""
			if y.HasNominal && y.Variation != schema.NominalVariation {
				delta = fmtFloat(y.RelDelta)
			}
			row := []string{
				y.Sample,
				y.Category,
				y.Subsample,
				y.Variation,
				fmtFloat(y.SumW),
				fmtFloat(y.SumW2),
				fmtFloat(y.Error),
				strconv.FormatInt(y.Entries, 10),
				delta,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeParquetYields writes the yields as a Parquet file.
func writeParquetYields(w io.Writer, yields []schema.Yield) error {
	return parquet.Write(w, parquet.ConvertYields(yields))
}

// writeYieldsTable prints the yields using the tablewriter API, followed by a summary line.
func writeYieldsTable(w io.Writer, output *schema.YieldsOutput, cfg *contract.Config, fmtFloat func(float64) string, duration time.Duration) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Sample", "Category", "Subsample", "Variation", "SumW", "Error", "Entries", "Delta"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	nameWidth := GetMaxTableNameWidth(cfg)
	var data [][]string
	for _, y := range schema.EnrichYields(output.Yields) {
		data = append(data, []string{
			contract.TruncateName(y.Sample, nameWidth),
			schema.CategoryLabel(y.Category),
			schema.SubsampleLabel(y.Subsample),
			contract.TruncateName(y.Variation, nameWidth),
			fmtFloat(y.SumW),
			fmtFloat(y.Error),
			strconv.FormatInt(y.Entries, 10),
			formatDelta(y, cfg),
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	source := "computed"
	if output.Cached {
		source = "cached"
	}
	fmt.Fprintf(w, "Showing %d yields for %d samples (%d events in %d chunks, %s)\n",
		len(output.Yields), len(output.Samples), output.TotalEvents(), output.TotalChunks(), source)
	fmt.Fprintf(w, "Composition completed in %v with %d workers. Cache backend: %s\n", duration, cfg.Workers, cfg.CacheBackend)
	return nil
}

// formatDelta renders the relative shift of a varied yield. Nominal rows and
// cells without a nominal yield show a dash.
func formatDelta(y schema.EnrichedYield, cfg *contract.Config) string {
	if y.Variation == schema.NominalVariation || !y.HasNominal {
		return "-"
	}
	if cfg.UseColors {
		return contract.GetColorDelta(y.RelDelta, 1)
	}
	return contract.FormatDelta(y.RelDelta, 1)
}
