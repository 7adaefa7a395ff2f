package weights

// ComputeFunc is the signature accepted by Func.
type ComputeFunc func(meta Metadata, events Events, size int, shapeVariation string) (Result, error)

// funcContributor binds a ComputeFunc to one sample.
type funcContributor struct {
	meta Metadata
	fn   ComputeFunc
}

func (c *funcContributor) Compute(events Events, size int, shapeVariation string) (Result, error) {
	return c.fn(c.meta, events, size, shapeVariation)
}

// Func adapts a stateless function into a Definition.
// variations may be nil for contributors without labels.
func Func(name string, hasVariations bool, variations func(Metadata) []string, fn ComputeFunc) Definition {
	return Definition{
		Name:          name,
		HasVariations: hasVariations,
		Variations:    variations,
		New: func(meta Metadata) (Contributor, error) {
			return &funcContributor{meta: meta, fn: fn}, nil
		},
	}
}

// StaticLabels returns a Variations func that always yields labels.
func StaticLabels(labels ...string) func(Metadata) []string {
	return func(Metadata) []string { return labels }
}
