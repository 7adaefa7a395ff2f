package contract

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/huangsam/weightflow/core/contrib"
	"github.com/huangsam/weightflow/core/events"
	"github.com/huangsam/weightflow/core/weights"
)

// DefaultAnalysisFile is looked up in the working directory when no analysis file is given.
const DefaultAnalysisFile = "analysis.yaml"

// AnalysisFile is the on-disk analysis definition. It is decoded with
// yaml.v3 rather than viper so that sample, category and weight names keep
// their case.
type AnalysisFile struct {
	Categories      map[string]events.Selection  `yaml:"categories"`
	Subsamples      map[string]events.Selection  `yaml:"subsamples"`
	Samples         map[string]SampleFile        `yaml:"samples"`
	Parameters      ParametersFile               `yaml:"parameters"`
	ShapeVariations map[string]map[string]string `yaml:"shape_variations"`
	Permissive      bool                         `yaml:"permissive"`
}

// SampleFile is one sample of the analysis definition.
type SampleFile struct {
	Files         []string          `yaml:"files"`
	Dataset       string            `yaml:"dataset"`
	Year          string            `yaml:"year"`
	IsMC          bool              `yaml:"is_mc"`
	XSection      float64           `yaml:"xsection"`
	SumGenWeights float64           `yaml:"sum_gen_weights"`
	Subsamples    []string          `yaml:"subsamples"`
	Tags          map[string]string `yaml:"tags"`
	Weights       ScopeFile         `yaml:"weights"`
}

// ScopeFile is the weight configuration of one sample.
type ScopeFile struct {
	Inclusive         []string                 `yaml:"inclusive"`
	IsSplitByCategory bool                     `yaml:"is_split_by_category"`
	ByCategory        map[string][]string      `yaml:"by_category"`
	BySubsample       map[string]ScopeSpecFile `yaml:"by_subsample"`
	External          map[string]ExternalFile  `yaml:"external"`
}

// ScopeSpecFile is the weight configuration of one subsample.
type ScopeSpecFile struct {
	Inclusive  []string            `yaml:"inclusive"`
	ByCategory map[string][]string `yaml:"by_category"`
}

// ExternalFile declares a weight supplied outside the registry.
type ExternalFile struct {
	HasVariations bool `yaml:"has_variations"`
}

// ParametersFile configures the built-in contributors.
type ParametersFile struct {
	Lumi            map[string]float64       `yaml:"lumi"`
	CorrectionFile  string                   `yaml:"correction_file"`
	GenWeightColumn string                   `yaml:"genweight_column"`
	PileupInput     string                   `yaml:"pileup_input"`
	BTagInput       string                   `yaml:"btag_input"`
	BTagSources     map[string][]string      `yaml:"btag_sources"`
	ColumnWeights   []contrib.ColumnWeight   `yaml:"column_weights"`
	ConstantWeights []contrib.ConstantWeight `yaml:"constant_weights"`
}

// Sample is a validated sample ready for the engine.
type Sample struct {
	Name  string
	Files []string
	Meta  weights.Metadata
	Scope weights.SampleScope
}

// Analysis is the validated analysis definition.
type Analysis struct {
	Path            string
	Digest          []byte // Raw bytes of the definition, used for cache keys
	Categories      map[string]events.Selection
	Subsamples      map[string]events.Selection
	Samples         []Sample // Sorted by name
	Params          contrib.Params
	ShapeVariations map[string]map[string]string
	Permissive      bool
}

// CategoryNames returns the category names, sorted.
func (a *Analysis) CategoryNames() []string {
	return slices.Sorted(maps.Keys(a.Categories))
}

// ShapeVariationNames returns the shape variation names, sorted.
func (a *Analysis) ShapeVariationNames() []string {
	return slices.Sorted(maps.Keys(a.ShapeVariations))
}

// Sample returns the named sample.
func (a *Analysis) Sample(name string) (Sample, bool) {
	for _, s := range a.Samples {
		if s.Name == name {
			return s, true
		}
	}
	return Sample{}, false
}

// FilterSamples keeps only the named samples. An empty filter keeps all.
func (a *Analysis) FilterSamples(names []string) error {
	if len(names) == 0 {
		return nil
	}
	kept := make([]Sample, 0, len(names))
	for _, name := range names {
		s, ok := a.Sample(name)
		if !ok {
			return fmt.Errorf("unknown sample %q", name)
		}
		kept = append(kept, s)
	}
	slices.SortFunc(kept, func(x, y Sample) int { return cmp.Compare(x.Name, y.Name) })
	a.Samples = kept
	return nil
}

// LoadAnalysis reads, decodes and validates an analysis definition.
func LoadAnalysis(path string) (*Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis file: %w", err)
	}
	raw, err := DecodeAnalysis(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	a, err := raw.Validate(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	a.Path = path
	a.Digest = data
	return a, nil
}

// DecodeAnalysis decodes an analysis definition, rejecting unknown fields.
func DecodeAnalysis(r io.Reader) (*AnalysisFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var raw AnalysisFile
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("analysis file is empty")
		}
		return nil, fmt.Errorf("failed to decode analysis file: %w", err)
	}
	return &raw, nil
}

// Validate checks the definition and resolves relative paths against baseDir.
func (f *AnalysisFile) Validate(baseDir string) (*Analysis, error) {
	if len(f.Samples) == 0 {
		return nil, errors.New("analysis defines no samples")
	}
	for name := range f.Categories {
		if name == "" {
			return nil, errors.New("category names cannot be empty")
		}
	}
	for name, aliases := range f.ShapeVariations {
		if name == "" || weights.IsNominal(name) {
			return nil, fmt.Errorf("invalid shape variation name %q", name)
		}
		if len(aliases) == 0 {
			return nil, fmt.Errorf("shape variation %q replaces no columns", name)
		}
	}

	for year, sources := range f.Parameters.BTagSources {
		if len(sources) == 0 {
			return nil, fmt.Errorf("btag_sources for year %q lists no sources", year)
		}
	}

	a := &Analysis{
		Categories:      f.Categories,
		Subsamples:      f.Subsamples,
		ShapeVariations: f.ShapeVariations,
		Permissive:      f.Permissive,
		Params: contrib.Params{
			Lumi:            f.Parameters.Lumi,
			CorrectionFile:  resolvePath(baseDir, f.Parameters.CorrectionFile),
			GenWeightColumn: f.Parameters.GenWeightColumn,
			PileupInput:     f.Parameters.PileupInput,
			BTagInput:       f.Parameters.BTagInput,
			BTagSources:     f.Parameters.BTagSources,
			Columns:         f.Parameters.ColumnWeights,
			Constants:       f.Parameters.ConstantWeights,
		},
	}
	if a.Categories == nil {
		a.Categories = map[string]events.Selection{}
	}
	if a.Subsamples == nil {
		a.Subsamples = map[string]events.Selection{}
	}

	for _, name := range slices.Sorted(maps.Keys(f.Samples)) {
		s, err := f.Samples[name].toSample(name, baseDir, a.Subsamples)
		if err != nil {
			return nil, fmt.Errorf("sample %q: %w", name, err)
		}
		a.Samples = append(a.Samples, s)
	}
	return a, nil
}

func (s SampleFile) toSample(name, baseDir string, subsamples map[string]events.Selection) (Sample, error) {
	if len(s.Files) == 0 {
		return Sample{}, errors.New("no input files")
	}
	files := make([]string, len(s.Files))
	for i, f := range s.Files {
		files[i] = resolvePath(baseDir, f)
	}

	scope := weights.SampleScope{
		Inclusive:         s.Weights.Inclusive,
		IsSplitByCategory: s.Weights.IsSplitByCategory,
		ByCategory:        s.Weights.ByCategory,
	}
	if len(s.Weights.BySubsample) > 0 {
		scope.BySubsample = make(map[string]weights.ScopeSpec, len(s.Weights.BySubsample))
		for sub, spec := range s.Weights.BySubsample {
			scope.BySubsample[sub] = weights.ScopeSpec{Inclusive: spec.Inclusive, ByCategory: spec.ByCategory}
		}
	}
	if len(s.Weights.External) > 0 {
		scope.External = make(map[string]weights.ExternalWeight, len(s.Weights.External))
		for ext, decl := range s.Weights.External {
			scope.External[ext] = weights.ExternalWeight{HasVariations: decl.HasVariations}
		}
	}

	subs := map[string]struct{}{}
	for _, sub := range s.Subsamples {
		subs[sub] = struct{}{}
	}
	for sub := range scope.BySubsample {
		subs[sub] = struct{}{}
	}
	for sub := range subs {
		if _, ok := subsamples[sub]; !ok {
			return Sample{}, fmt.Errorf("subsample %q has no selection", sub)
		}
	}

	return Sample{
		Name:  name,
		Files: files,
		Meta: weights.Metadata{
			Sample:         name,
			Dataset:        s.Dataset,
			Year:           s.Year,
			IsMC:           s.IsMC,
			XSection:       s.XSection,
			SumGenWeights:  s.SumGenWeights,
			Subsamples:     slices.Sorted(maps.Keys(subs)),
			AdditionalTags: s.Tags,
		},
		Scope: scope,
	}, nil
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
