package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/huangsam/weightflow/internal/contract"
	"github.com/huangsam/weightflow/internal/parquet"
	"github.com/huangsam/weightflow/schema"
)

// writeCSVModifiers writes one row per (scope, modifier) pair.
func writeCSVModifiers(w io.Writer, output *schema.ModifiersOutput) error {
	header := []string{"sample", "category", "subsample", "modifier"}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, m := range parquet.ConvertModifiers(output) {
			if err := cw.Write([]string{m.Sample, m.Category, m.Subsample, m.Modifier}); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeParquetModifiers writes the availability report as a Parquet file.
func writeParquetModifiers(w io.Writer, output *schema.ModifiersOutput) error {
	return parquet.Write(w, parquet.ConvertModifiers(output))
}

// writeModifiersTable prints two tables: modifiers per scope, then per weight.
func writeModifiersTable(w io.Writer, output *schema.ModifiersOutput, cfg *contract.Config) error {
	nameWidth := GetMaxTableNameWidth(cfg)

	scopes := tablewriter.NewWriter(w)
	scopes.Header([]string{"Sample", "Category", "Subsample", "Modifiers"})
	var data [][]string
	for _, row := range output.Scopes {
		data = append(data, []string{
			contract.TruncateName(row.Sample, nameWidth),
			schema.CategoryLabel(row.Category),
			schema.SubsampleLabel(row.Subsample),
			joinModifiers(row.Modifiers),
		})
	}
	if err := scopes.Bulk(data); err != nil {
		return err
	}
	if err := scopes.Render(); err != nil {
		return err
	}

	weights := tablewriter.NewWriter(w)
	weights.Header([]string{"Sample", "Weight", "Modifiers"})
	data = data[:0]
	for _, row := range output.Weights {
		data = append(data, []string{
			contract.TruncateName(row.Sample, nameWidth),
			row.Weight,
			joinModifiers(row.Modifiers),
		})
	}
	if err := weights.Bulk(data); err != nil {
		return err
	}
	if err := weights.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Showing %d scopes and %d weights. Nominal is always available.\n", len(output.Scopes), len(output.Weights))
	return nil
}

func joinModifiers(mods []string) string {
	if len(mods) == 0 {
		return "-"
	}
	return strings.Join(mods, ", ")
}
