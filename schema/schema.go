// Package schema has models and constants shared by all parts of weightflow.
package schema

// Yield is the weighted event count of one (sample, category, subsample, variation) cell.
type Yield struct {
	Sample    string  `json:"sample" yaml:"sample"`
	Category  string  `json:"category" yaml:"category"`   // Empty for the inclusive selection
	Subsample string  `json:"subsample" yaml:"subsample"` // Empty for the overall sample
	Variation string  `json:"variation" yaml:"variation"` // Weight modifier or shape variation name
	SumW      float64 `json:"sumw" yaml:"sumw"`           // Sum of weights
	SumW2     float64 `json:"sumw2" yaml:"sumw2"`         // Sum of squared weights
	Entries   int64   `json:"entries" yaml:"entries"`     // Raw number of selected events
}

// Cell identifies a yield without its variation.
type Cell struct {
	Sample    string
	Category  string
	Subsample string
}

// Cell returns the cell of the yield.
func (y Yield) Cell() Cell {
	return Cell{Sample: y.Sample, Category: y.Category, Subsample: y.Subsample}
}

// SampleSummary records what was processed for one sample.
type SampleSummary struct {
	Sample string `json:"sample" yaml:"sample"`
	Files  int    `json:"files" yaml:"files"`
	Chunks int    `json:"chunks" yaml:"chunks"`
	Events int64  `json:"events" yaml:"events"`
}

// YieldsOutput is the result of a yields run.
type YieldsOutput struct {
	Yields  []Yield         `json:"yields" yaml:"yields"`
	Samples []SampleSummary `json:"samples" yaml:"samples"`
	Cached  bool            `json:"cached" yaml:"cached"`
}

// TotalEvents returns the number of events read across all samples.
func (o *YieldsOutput) TotalEvents() int64 {
	var n int64
	for _, s := range o.Samples {
		n += s.Events
	}
	return n
}

// TotalChunks returns the number of chunks processed across all samples.
func (o *YieldsOutput) TotalChunks() int {
	n := 0
	for _, s := range o.Samples {
		n += s.Chunks
	}
	return n
}

// ModifierRow lists the modifiers a (sample, category, subsample) scope accepts.
type ModifierRow struct {
	Sample    string   `json:"sample" yaml:"sample"`
	Category  string   `json:"category" yaml:"category"`
	Subsample string   `json:"subsample" yaml:"subsample"`
	Modifiers []string `json:"modifiers" yaml:"modifiers"`
}

// WeightModifiers lists the modifiers one contributor installs for a sample.
type WeightModifiers struct {
	Sample    string   `json:"sample" yaml:"sample"`
	Weight    string   `json:"weight" yaml:"weight"`
	Modifiers []string `json:"modifiers" yaml:"modifiers"`
}

// ModifiersOutput is the static availability report.
type ModifiersOutput struct {
	Scopes  []ModifierRow     `json:"scopes" yaml:"scopes"`
	Weights []WeightModifiers `json:"weights" yaml:"weights"`
}
