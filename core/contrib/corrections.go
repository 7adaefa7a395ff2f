package contrib

import (
	"fmt"
	"slices"

	"github.com/huangsam/weightflow/core/correction"
	"github.com/huangsam/weightflow/core/weights"
)

// Uncertainty sources shared by every year, and the statistical sources
// that are decorrelated per year.
var (
	btagCommonSources = []string{"cferr1", "cferr2", "hf", "lf"}
	btagYearSources   = []string{"hfstats1", "hfstats2", "lfstats1", "lfstats2"}
)

// BTagSources returns the b-tag uncertainty labels for a sample.
func BTagSources(params Params, meta weights.Metadata) []string {
	if sources, ok := params.BTagSources[meta.Year]; ok {
		return slices.Clone(sources)
	}
	labels := slices.Clone(btagCommonSources)
	for _, s := range btagYearSources {
		if meta.Year == "" {
			labels = append(labels, s)
		} else {
			labels = append(labels, s+"_"+meta.Year)
		}
	}
	return labels
}

// binnedContributor evaluates one correction on an input column.
type binnedContributor struct {
	name   string
	binned *correction.Binned
	input  string
	isMC   bool
	labels []string // nil for a single up/down pair
}

func loadBinned(params Params, name, input string) (*correction.Binned, string, error) {
	if params.CorrectionFile == "" {
		return nil, "", fmt.Errorf("%w: %s needs a correction file", ErrMissingParameter, name)
	}
	set, err := params.Loader.Load(params.CorrectionFile)
	if err != nil {
		return nil, "", err
	}
	binned, err := set.Get(name)
	if err != nil {
		return nil, "", err
	}
	if input == "" {
		input = binned.Input
	}
	return binned, input, nil
}

func pileup(params Params) weights.Definition {
	return weights.Definition{
		Name:          NamePileup,
		HasVariations: true,
		New: func(meta weights.Metadata) (weights.Contributor, error) {
			if !meta.IsMC {
				return &binnedContributor{name: NamePileup}, nil
			}
			binned, input, err := loadBinned(params, NamePileup, params.PileupInput)
			if err != nil {
				return nil, err
			}
			if input == "" {
				input = DefaultPileupInput
			}
			for _, key := range []string{"up", "down"} {
				if _, ok := binned.Values[key]; !ok {
					return nil, fmt.Errorf("%w: %s has no %q values", weights.ErrUnknownVariation, NamePileup, key)
				}
			}
			return &binnedContributor{name: NamePileup, binned: binned, input: input, isMC: true}, nil
		},
	}
}

func btag(params Params) weights.Definition {
	return weights.Definition{
		Name:          NameBTag,
		HasVariations: true,
		Variations: func(meta weights.Metadata) []string {
			return BTagSources(params, meta)
		},
		New: func(meta weights.Metadata) (weights.Contributor, error) {
			labels := BTagSources(params, meta)
			if !meta.IsMC {
				return &binnedContributor{name: NameBTag, labels: labels}, nil
			}
			binned, input, err := loadBinned(params, NameBTag, params.BTagInput)
			if err != nil {
				return nil, err
			}
			if input == "" {
				input = DefaultBTagInput
			}
			for _, label := range labels {
				for _, key := range []string{"up_" + label, "down_" + label} {
					if _, ok := binned.Values[key]; !ok {
						return nil, fmt.Errorf("%w: %s does not support source %q", weights.ErrUnknownVariation, NameBTag, label)
					}
				}
			}
			return &binnedContributor{name: NameBTag, binned: binned, input: input, isMC: true, labels: labels}, nil
		},
	}
}

func (c *binnedContributor) Compute(events weights.Events, size int, shapeVariation string) (weights.Result, error) {
	shifted := !weights.IsNominal(shapeVariation)
	if !c.isMC {
		return c.ones(size, shifted), nil
	}

	x, err := events.Column(c.input)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	nominal, err := c.binned.Evaluate("nominal", x)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	if shifted {
		return weights.Simple(nominal), nil
	}

	if c.labels == nil {
		up, err := c.binned.Evaluate("up", x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		down, err := c.binned.Evaluate("down", x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		return weights.SimpleVaried(nominal, up, down), nil
	}

	ups := make([][]float64, len(c.labels))
	downs := make([][]float64, len(c.labels))
	for i, label := range c.labels {
		if ups[i], err = c.binned.Evaluate("up_"+label, x); err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		if downs[i], err = c.binned.Evaluate("down_"+label, x); err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return weights.Multi(nominal, slices.Clone(c.labels), ups, downs), nil
}

// ones is the data result: unit weights carrying the declared variations.
func (c *binnedContributor) ones(size int, shifted bool) weights.Result {
	nominal := weights.Ones(size)
	if shifted {
		return weights.Simple(nominal)
	}
	if c.labels == nil {
		return weights.SimpleVaried(nominal, nominal, nominal)
	}
	ups := make([][]float64, len(c.labels))
	downs := make([][]float64, len(c.labels))
	for i := range c.labels {
		ups[i], downs[i] = nominal, nominal
	}
	return weights.Multi(nominal, slices.Clone(c.labels), ups, downs)
}
