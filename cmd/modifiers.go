package cmd

import (
	"github.com/huangsam/weightflow/core"
	"github.com/huangsam/weightflow/internal/contract"
	"github.com/spf13/cobra"
)

// modifiersCmd displays the modifiers every sample scope can produce.
var modifiersCmd = &cobra.Command{
	Use:   "modifiers [analysis-path]",
	Short: "List the weight modifiers available per sample scope",
	Long: `Show which weight modifiers each (sample, category, subsample) scope accepts,
and which modifiers each weight contributes.

No events are read. Use this to check an analysis definition before running
a long composition.

Examples:
  # List modifiers for every sample
  weightflow modifiers

  # One sample, as JSON
  weightflow modifiers ana.yaml --sample ttbar --output json`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteModifiers(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot list modifiers", err)
		}
	},
}
