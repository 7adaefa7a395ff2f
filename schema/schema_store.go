package schema

import "time"

// RunRecord represents a row from the weightflow_runs table.
type RunRecord struct {
	RunID         int64
	StartTime     time.Time
	EndTime       *time.Time
	RunDurationMs *int64
	TotalSamples  int32
	TotalChunks   int32
	TotalEvents   int64
	ConfigParams  *string
}

// YieldRecord represents a row from the weightflow_yields table.
type YieldRecord struct {
	RunID int64
	Yield
}
