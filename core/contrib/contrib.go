// Package contrib provides the built-in weight contributors.
package contrib

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/huangsam/weightflow/core/correction"
	"github.com/huangsam/weightflow/core/weights"
)

// Built-in contributor names.
const (
	NameGenWeight = "genWeight"
	NameLumi      = "lumi"
	NameXS        = "XS"
	NamePileup    = "pileup"
	NameBTag      = "sf_btag"
)

// Default input columns.
const (
	DefaultGenWeightColumn = "genWeight"
	DefaultPileupInput     = "Pileup_nTrueInt"
	DefaultBTagInput       = "btag_discriminant"
)

// ErrMissingParameter is returned when a contributor is used without the
// parameters it needs.
var ErrMissingParameter = errors.New("missing parameter")

// ColumnWeight reads a weight straight from event columns.
// The weight is varied when both Up and Down are set.
type ColumnWeight struct {
	Name    string `mapstructure:"name" json:"name" yaml:"name"`
	Nominal string `mapstructure:"nominal" json:"nominal" yaml:"nominal"`
	Up      string `mapstructure:"up" json:"up,omitempty" yaml:"up,omitempty"`
	Down    string `mapstructure:"down" json:"down,omitempty" yaml:"down,omitempty"`
}

// ConstantWeight applies the same value to every event.
type ConstantWeight struct {
	Name  string   `mapstructure:"name" json:"name" yaml:"name"`
	Value float64  `mapstructure:"value" json:"value" yaml:"value"`
	Up    *float64 `mapstructure:"up" json:"up,omitempty" yaml:"up,omitempty"`
	Down  *float64 `mapstructure:"down" json:"down,omitempty" yaml:"down,omitempty"`
}

// Params configures the built-in contributors.
type Params struct {
	Lumi            map[string]float64  // Integrated luminosity per data-taking year
	CorrectionFile  string              // JSON correction set used by pileup and sf_btag
	GenWeightColumn string              // Defaults to DefaultGenWeightColumn
	PileupInput     string              // Overrides the input column of the pileup correction
	BTagInput       string              // Overrides the input column of the b-tag correction
	BTagSources     map[string][]string // Per-year override of the b-tag uncertainty sources
	Columns         []ColumnWeight
	Constants       []ConstantWeight

	Loader *correction.Loader
}

// Definitions returns every built-in contributor plus the column and
// constant weights declared in params.
func Definitions(params Params) ([]weights.Definition, error) {
	if params.Loader == nil {
		loader, err := correction.NewLoader(correction.DefaultCacheSize)
		if err != nil {
			return nil, err
		}
		params.Loader = loader
	}

	for _, year := range slices.Sorted(maps.Keys(params.BTagSources)) {
		if len(params.BTagSources[year]) == 0 {
			return nil, fmt.Errorf("%w: %s sources for year %q are empty", ErrMissingParameter, NameBTag, year)
		}
	}

	defs := []weights.Definition{
		genWeight(params),
		lumi(params),
		xs(),
		pileup(params),
		btag(params),
	}
	for _, cw := range params.Columns {
		def, err := columnWeight(cw)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	for _, c := range params.Constants {
		def, err := constantWeight(c)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// NewRegistry builds a registry holding Definitions(params).
func NewRegistry(params Params) (*weights.Registry, error) {
	defs, err := Definitions(params)
	if err != nil {
		return nil, err
	}
	return weights.NewRegistry(defs...)
}

func genWeight(params Params) weights.Definition {
	column := params.GenWeightColumn
	if column == "" {
		column = DefaultGenWeightColumn
	}
	return weights.Func(NameGenWeight, false, nil, func(meta weights.Metadata, events weights.Events, size int, _ string) (weights.Result, error) {
		if !meta.IsMC {
			return weights.Simple(weights.Ones(size)), nil
		}
		col, err := events.Column(column)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", NameGenWeight, err)
		}
		return weights.Simple(col), nil
	})
}

func lumi(params Params) weights.Definition {
	return weights.Definition{
		Name: NameLumi,
		New: func(meta weights.Metadata) (weights.Contributor, error) {
			if !meta.IsMC {
				return constant(1), nil
			}
			value, ok := params.Lumi[meta.Year]
			if !ok {
				return nil, fmt.Errorf("%w: no luminosity for year %q", ErrMissingParameter, meta.Year)
			}
			return constant(value), nil
		},
	}
}

func xs() weights.Definition {
	return weights.Definition{
		Name: NameXS,
		New: func(meta weights.Metadata) (weights.Contributor, error) {
			if !meta.IsMC {
				return constant(1), nil
			}
			if meta.SumGenWeights == 0 {
				return nil, fmt.Errorf("%w: sample %q has no sum of generator weights", ErrMissingParameter, meta.Sample)
			}
			return constant(meta.XSection / meta.SumGenWeights), nil
		},
	}
}

// constant is a contributor returning the same value for every event.
type constant float64

func (c constant) Compute(_ weights.Events, size int, _ string) (weights.Result, error) {
	return weights.Simple(weights.Constant(size, float64(c))), nil
}

func columnWeight(cw ColumnWeight) (weights.Definition, error) {
	if cw.Name == "" || cw.Nominal == "" {
		return weights.Definition{}, fmt.Errorf("%w: column weight needs a name and a nominal column", ErrMissingParameter)
	}
	if (cw.Up == "") != (cw.Down == "") {
		return weights.Definition{}, fmt.Errorf("%w: column weight %q needs both up and down columns", ErrMissingParameter, cw.Name)
	}
	varied := cw.Up != ""
	return weights.Func(cw.Name, varied, nil, func(_ weights.Metadata, events weights.Events, _ int, shapeVariation string) (weights.Result, error) {
		nominal, err := events.Column(cw.Nominal)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cw.Name, err)
		}
		if !varied || !weights.IsNominal(shapeVariation) {
			return weights.Simple(nominal), nil
		}
		up, err := events.Column(cw.Up)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cw.Name, err)
		}
		down, err := events.Column(cw.Down)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cw.Name, err)
		}
		return weights.SimpleVaried(nominal, up, down), nil
	}), nil
}

func constantWeight(c ConstantWeight) (weights.Definition, error) {
	if c.Name == "" {
		return weights.Definition{}, fmt.Errorf("%w: constant weight needs a name", ErrMissingParameter)
	}
	if (c.Up == nil) != (c.Down == nil) {
		return weights.Definition{}, fmt.Errorf("%w: constant weight %q needs both up and down", ErrMissingParameter, c.Name)
	}
	varied := c.Up != nil
	return weights.Func(c.Name, varied, nil, func(_ weights.Metadata, _ weights.Events, size int, shapeVariation string) (weights.Result, error) {
		nominal := weights.Constant(size, c.Value)
		if !varied || !weights.IsNominal(shapeVariation) {
			return weights.Simple(nominal), nil
		}
		return weights.SimpleVaried(nominal, weights.Constant(size, *c.Up), weights.Constant(size, *c.Down)), nil
	}), nil
}
