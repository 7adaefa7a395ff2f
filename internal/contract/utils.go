package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
)

// Color variables for console output.
var (
	UpColor      = color.New(color.FgGreen)            // UpColor marks upward variations.
	DownColor    = color.New(color.FgRed)              // DownColor marks downward variations.
	NominalColor = color.New(color.FgCyan, color.Bold) // NominalColor marks the nominal yield.
	HeaderColor  = color.New(color.FgMagenta, color.Bold)
)

// FormatDelta returns a signed percentage like "+4.2%" for a relative shift.
func FormatDelta(rel float64, precision int) string {
	return fmt.Sprintf("%+.*f%%", precision, rel*100)
}

// GetColorDelta returns the delta colored by its direction.
func GetColorDelta(rel float64, precision int) string {
	text := FormatDelta(rel, precision)
	switch {
	case rel > 0:
		return UpColor.Sprint(text)
	case rel < 0:
		return DownColor.Sprint(text)
	default:
		return text
	}
}

// SelectOutputFile returns the appropriate file handle for output, based on the provided
// file path. It returns os.Stdout when no path is given.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// TruncateName shortens a name to maxWidth runes with an ellipsis suffix.
// Widths of 3 or less leave the name unchanged.
func TruncateName(name string, maxWidth int) string {
	runes := []rune(name)
	if len(runes) > maxWidth && maxWidth > 3 {
		return string(runes[:maxWidth-3]) + "..."
	}
	return name
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Fatal %s: %v\n", msg, err)
	os.Exit(1)
}

// LogWarn logs a warning message to stderr.
func LogWarn(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Warn %s: %v\n", msg, err)
}

// LogWarnf logs a formatted warning message to stderr.
func LogWarnf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "Warn "+format+"\n", args...)
}

// GetCacheDBFilePath returns the path to the SQLite DB file for cache storage.
func GetCacheDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".weightflow_cache.db"
	}
	return filepath.Join(homeDir, ".weightflow_cache.db")
}

// GetRunDBFilePath returns the path to the SQLite DB file for run tracking.
func GetRunDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".weightflow_runs.db"
	}
	return filepath.Join(homeDir, ".weightflow_runs.db")
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
// Returns an error for invalid values.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}

// SplitList splits a comma-separated flag value, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
