// Package weights composes named per-event weight contributors into
// nominal and systematically varied event weights.
//
// A Registry holds the statically known Definitions. An Engine binds a
// registry to one sample's scope configuration and resolves, without any
// event data, which modifiers every scope can produce. For each chunk of
// events a Composer evaluates every configured contributor at most once and
// answers weight queries for (category, subsample, modifier) triples.
package weights

import "slices"

// Nominal is the modifier name selecting the unvaried weight.
const Nominal = "nominal"

// Events is the columnar event collection handed to contributors.
type Events interface {
	// Len returns the number of events in the collection.
	Len() int
	// Column returns the per-event values of the named field.
	Column(name string) ([]float64, error)
}

// Metadata describes the sample currently being processed.
type Metadata struct {
	Sample         string
	Dataset        string
	Year           string
	IsMC           bool
	XSection       float64
	SumGenWeights  float64
	Subsamples     []string
	AdditionalTags map[string]string
}

// Contributor is one weight computation bound to a sample.
type Contributor interface {
	// Compute returns the weight for every event. size is the expected length
	// of each returned array. shapeVariation names the object-level
	// systematic being processed ("nominal" otherwise).
	Compute(events Events, size int, shapeVariation string) (Result, error)
}

// Definition is the static description of a contributor.
type Definition struct {
	// Name is the unique contributor name.
	Name string

	// HasVariations declares whether the contributor produces up/down weights.
	HasVariations bool

	// Variations returns the labels of a multi-variation contributor for the
	// given sample. A nil func or an empty return means a simple variation,
	// and Compute must then return a SimpleResult with up and down.
	Variations func(meta Metadata) []string

	// New instantiates the contributor for one sample.
	New func(meta Metadata) (Contributor, error)
}

// Labels returns the static variation labels for the sample, if any.
func (d Definition) Labels(meta Metadata) []string {
	if !d.HasVariations || d.Variations == nil {
		return nil
	}
	return d.Variations(meta)
}

// Modifiers returns the modifiers this definition installs for the sample.
func (d Definition) Modifiers(meta Metadata) []string {
	if !d.HasVariations {
		return nil
	}
	labels := d.Labels(meta)
	if len(labels) == 0 {
		return []string{UpModifier(d.Name), DownModifier(d.Name)}
	}
	out := make([]string, 0, 2*len(labels))
	for _, label := range labels {
		out = append(out, VariationModifier(d.Name, label, true), VariationModifier(d.Name, label, false))
	}
	return out
}

// UpModifier returns the up modifier of a simple-variation weight.
func UpModifier(name string) string { return name + "Up" }

// DownModifier returns the down modifier of a simple-variation weight.
func DownModifier(name string) string { return name + "Down" }

// VariationModifier returns the modifier of one label of a multi-variation weight.
func VariationModifier(name, label string, up bool) string {
	if up {
		return name + "_" + label + "Up"
	}
	return name + "_" + label + "Down"
}

// IsNominal reports whether the modifier selects the nominal weight.
func IsNominal(modifier string) bool {
	return modifier == "" || modifier == Nominal
}

// sortedKeys returns the keys of a set in ascending order.
func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
