package cmd

import (
	"github.com/huangsam/weightflow/core"
	"github.com/huangsam/weightflow/internal/contract"
	"github.com/spf13/cobra"
)

// yieldsCmd composes weights and fills the weighted yields.
var yieldsCmd = &cobra.Command{
	Use:   "yields [analysis-path]",
	Short: "Compose event weights and print weighted yields.",
	Long: `Read the event files of every sample, compose the configured weights and
fill the weighted yields of each category, subsample and variation.

Every yield carries the sum of weights, the sum of squared weights and the
raw number of selected events. Varied yields also show their relative shift
with respect to the nominal yield of the same cell.

Results are cached by the content of the analysis file and of every input
file, so repeated runs over unchanged inputs return immediately.

Examples:
  # Compute yields for every sample of analysis.yaml
  weightflow yields

  # Process two samples with 8 workers and 50k-event chunks
  weightflow yields ana.yaml --sample ttbar,wjets --workers 8 --chunk-size 50000

  # Only the nominal yields
  weightflow yields --nominal-only

  # Export to Parquet for downstream fitting
  weightflow yields --output parquet --output-file yields.parquet`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteYields(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot compute yields", err)
		}
	},
}
