package cmd

import (
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// buildRevision falls back to the VCS revision stamped by the Go toolchain
// when no commit was injected at link time.
func buildRevision() string {
	if commit != "none" {
		return commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commit
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value
		}
	}
	return commit
}

// versionCmd prints build details for bug reports.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of weightflow.",
	Long: `Display the release version, commit, build date and Go runtime.

Include this output when reporting a problem with a yields run.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("weightflow %s\n", version)
		cmd.Printf("  commit:  %s\n", buildRevision())
		cmd.Printf("  built:   %s\n", date)
		cmd.Printf("  go:      %s (%s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
