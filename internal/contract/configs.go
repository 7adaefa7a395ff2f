package contract

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/huangsam/weightflow/core/events"
	"github.com/huangsam/weightflow/schema"
)

// Default values for configuration.
const (
	DefaultPrecision = 3
	MaxPrecision     = 8
)

// DefaultWorkers is the default number of concurrent workers to use.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// Config holds the runtime configuration for a run.
// This struct remains the "final, validated" config.
type Config struct {
	AnalysisPath string
	Analysis     *Analysis
	Samples      []string // Sample filter, empty means every sample

	Workers     int
	ChunkSize   int
	Precision   int
	Output      schema.OutputMode
	OutputFile  string
	Width       int // Terminal width override (0 = auto-detect)
	NominalOnly bool
	Permissive  bool

	CacheBackend   schema.DatabaseBackend
	CacheDBConnect string // Please use env var as this is plaintext

	RunBackend   schema.DatabaseBackend
	RunDBConnect string // Please use env var as this is plaintext

	UseEmojis bool // Enable emojis in progress lines
	UseColors bool // Enable colored deltas in table output
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// This is set manually from positional args, so no tag
	AnalysisPathStr string

	// --- Fields from rootCmd.PersistentFlags() ---
	Analysis       string `mapstructure:"analysis"`
	Sample         string `mapstructure:"sample"`
	Workers        int    `mapstructure:"workers"`
	ChunkSize      int    `mapstructure:"chunk-size"`
	Precision      int    `mapstructure:"precision"`
	Output         string `mapstructure:"output"`
	OutputFile     string `mapstructure:"output-file"`
	Width          int    `mapstructure:"width"`
	CacheBackend   string `mapstructure:"cache-backend"`
	CacheDBConnect string `mapstructure:"cache-db-connect"`
	RunBackend     string `mapstructure:"run-backend"`
	RunDBConnect   string `mapstructure:"run-db-connect"`
	Emoji          string `mapstructure:"emoji"`
	Color          string `mapstructure:"color"`

	// --- Fields from yieldsCmd.Flags() ---
	NominalOnly bool `mapstructure:"nominal-only"`
	Permissive  bool `mapstructure:"permissive"`
}

// Clone returns a copy of the Config struct. The analysis is shared.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Samples != nil {
		clone.Samples = make([]string, len(c.Samples))
		copy(clone.Samples, c.Samples)
	}
	return &clone
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := validateBackendConfigs(cfg, input); err != nil {
		return err
	}
	return processAnalysis(cfg, input)
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	default:
		return fmt.Errorf("invalid backend '%s'. must be sqlite, mysql, postgresql, none", backend)
	}
	return nil
}

// ParseBackend normalizes a backend flag value. Empty means fallback.
func ParseBackend(value string, fallback schema.DatabaseBackend) (schema.DatabaseBackend, error) {
	if value == "" {
		return fallback, nil
	}
	backend := schema.DatabaseBackend(strings.ToLower(value))
	if _, ok := schema.ValidDatabaseBackends[backend]; !ok {
		return "", fmt.Errorf("invalid backend '%s'. must be sqlite, mysql, postgresql, none", value)
	}
	return backend, nil
}

// validateBackendConfigs validates cache and run backend configurations.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	// --- Cache Backend Validation ---
	backend, err := ParseBackend(input.CacheBackend, schema.SQLiteBackend)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	cfg.CacheBackend = backend
	cfg.CacheDBConnect = input.CacheDBConnect
	if err := ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect); err != nil {
		return err
	}

	// --- Run Backend Validation ---
	backend, err = ParseBackend(input.RunBackend, schema.NoneBackend)
	if err != nil {
		return fmt.Errorf("runs: %w", err)
	}
	cfg.RunBackend = backend
	cfg.RunDBConnect = input.RunDBConnect
	if err := ValidateDatabaseConnectionString(cfg.RunBackend, cfg.RunDBConnect); err != nil {
		return err
	}

	// Cache and run tracking must not share a SQLite file
	if cfg.CacheBackend == schema.SQLiteBackend && cfg.RunBackend == schema.SQLiteBackend {
		cacheDBPath := cfg.CacheDBConnect
		if cacheDBPath == "" {
			cacheDBPath = GetCacheDBFilePath()
		}
		runDBPath := cfg.RunDBConnect
		if runDBPath == "" {
			runDBPath = GetRunDBFilePath()
		}
		if cacheDBPath == runDBPath {
			return fmt.Errorf("cache and run storage must use different SQLite database files. Both resolve to %q", cacheDBPath)
		}
	}
	return nil
}

// validateSimpleInputs processes and validates all non-analysis fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width
	cfg.NominalOnly = input.NominalOnly
	cfg.Permissive = input.Permissive
	cfg.Samples = SplitList(input.Sample)

	emojis, err := ParseBoolString(input.Emoji)
	if err != nil {
		return fmt.Errorf("invalid --emoji value: %w", err)
	}
	cfg.UseEmojis = emojis

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	if input.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0 (received %d)", input.Workers)
	}
	cfg.Workers = input.Workers

	if input.ChunkSize < 0 {
		return fmt.Errorf("chunk-size cannot be negative (received %d)", input.ChunkSize)
	}
	cfg.ChunkSize = input.ChunkSize
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = events.DefaultChunkSize
	}

	if input.Precision < 0 || input.Precision > MaxPrecision {
		return fmt.Errorf("precision must be between 0 and %d (received %d)", MaxPrecision, input.Precision)
	}
	cfg.Precision = input.Precision

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, csv, json, yaml, parquet", input.Output)
	}
	if cfg.Output == schema.ParquetOut && cfg.OutputFile == "" {
		return fmt.Errorf("parquet output requires --output-file")
	}
	return nil
}

// processAnalysis loads the analysis definition and applies the sample filter.
func processAnalysis(cfg *Config, input *ConfigRawInput) error {
	path := input.AnalysisPathStr
	if path == "" {
		path = input.Analysis
	}
	if path == "" {
		path = DefaultAnalysisFile
	}
	cfg.AnalysisPath = path

	analysis, err := LoadAnalysis(path)
	if err != nil {
		return err
	}
	if err := analysis.FilterSamples(cfg.Samples); err != nil {
		return err
	}
	if cfg.Permissive {
		analysis.Permissive = true
	}
	cfg.Analysis = analysis
	return nil
}

// ProcessProfilingConfig handles the profiling flag and sets up profiling configuration.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}

// RevalidateAnalysis reloads the analysis for a cloned config when a caller
// overrides the analysis path or the sample filter.
func RevalidateAnalysis(cfg *Config, path, samples string) error {
	if path == "" && samples == "" {
		if cfg.Analysis == nil {
			return fmt.Errorf("no analysis loaded")
		}
		return nil
	}
	if path == "" {
		path = cfg.AnalysisPath
	}
	if path == "" {
		path = DefaultAnalysisFile
	}

	analysis, err := LoadAnalysis(path)
	if err != nil {
		return err
	}
	if samples != "" {
		cfg.Samples = SplitList(samples)
	}
	if err := analysis.FilterSamples(cfg.Samples); err != nil {
		return err
	}
	if cfg.Permissive {
		analysis.Permissive = true
	}
	cfg.AnalysisPath = path
	cfg.Analysis = analysis
	return nil
}
