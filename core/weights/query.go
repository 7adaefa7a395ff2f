package weights

import "fmt"

// term is a product of at most two containers (inclusive and category).
type term struct {
	inclusive *Container
	category  *Container
}

func (t term) has(modifier string) (inInclusive, inCategory bool) {
	if t.inclusive != nil {
		inInclusive = t.inclusive.HasModifier(modifier)
	}
	if t.category != nil {
		inCategory = t.category.HasModifier(modifier)
	}
	return inInclusive, inCategory
}

// weight returns the term's product. A modifier the term does not carry
// yields the nominal product; callers decide whether that is allowed.
// When both containers carry the modifier only the inclusive one is varied.
func (t term) weight(size int, modifier string) ([]float64, error) {
	out := Ones(size)
	varied := false
	for _, ct := range []*Container{t.inclusive, t.category} {
		if ct == nil {
			continue
		}
		mod := Nominal
		if !varied && !IsNominal(modifier) && ct.HasModifier(modifier) {
			mod = modifier
			varied = true
		}
		w, err := ct.Weight(mod)
		if err != nil {
			return nil, err
		}
		out = multiply(out, w)
	}
	return out, nil
}

// overallTerm returns the sample-wide term for a category.
func (c *Composer) overallTerm(category string) term {
	t := term{inclusive: c.inclusive}
	if category != "" && c.engine.scope.IsSplitByCategory {
		t.category = c.byCategory[category]
	}
	return t
}

// subsampleTerm returns the subsample-specific term for a category.
func (c *Composer) subsampleTerm(subsample, category string) term {
	t := term{inclusive: c.subInclusive[subsample]}
	if category != "" && c.engine.scope.IsSplitByCategory {
		t.category = c.subByCategory[subsample][category]
	}
	return t
}

// validate checks the query arguments against the engine configuration.
func (c *Composer) validate(category, subsample string) error {
	if !c.computed {
		return ErrNotComputed
	}
	if category != "" && c.engine.scope.IsSplitByCategory {
		if _, ok := c.engine.categories[category]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
		}
	}
	if subsample != "" {
		if _, ok := c.engine.subsamples[subsample]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownSubsample, subsample)
		}
	}
	return nil
}

// GetWeight returns the combined per-event weight for a category,
// subsample and modifier. Empty category or subsample means none; an empty
// modifier or "nominal" selects the nominal weight.
//
// The modifier varies the scopes that installed it and leaves the others
// at nominal. Within the sample-wide term and within the subsample term,
// a modifier installed both inclusively and in the category varies the
// inclusive factor only. A modifier installed in no reachable scope is an
// error.
func (c *Composer) GetWeight(category, subsample, modifier string) ([]float64, error) {
	if err := c.validate(category, subsample); err != nil {
		return nil, err
	}

	overall := c.overallTerm(category)
	if IsNominal(modifier) {
		w, err := overall.weight(c.size, Nominal)
		if err != nil {
			return nil, err
		}
		if subsample == "" {
			return w, nil
		}
		sw, err := c.subsampleTerm(subsample, category).weight(c.size, Nominal)
		if err != nil {
			return nil, err
		}
		return multiply(w, sw), nil
	}

	inInc, inCat := overall.has(modifier)
	found := inInc || inCat

	var sub term
	if subsample != "" {
		sub = c.subsampleTerm(subsample, category)
		subInc, subCat := sub.has(modifier)
		found = found || subInc || subCat
	}
	if !found {
		return nil, fmt.Errorf("%w: %q for sample %q, category %q, subsample %q",
			ErrUnknownModifier, modifier, c.engine.meta.Sample, category, subsample)
	}

	w, err := overall.weight(c.size, modifier)
	if err != nil {
		return nil, err
	}
	if subsample == "" {
		return w, nil
	}
	sw, err := sub.weight(c.size, modifier)
	if err != nil {
		return nil, err
	}
	return multiply(w, sw), nil
}

// GetWeightOnlySubsample returns only the subsample-specific term. A
// modifier the subsample does not carry falls back to its nominal weight.
func (c *Composer) GetWeightOnlySubsample(subsample, category, modifier string) ([]float64, error) {
	if subsample == "" {
		return nil, fmt.Errorf("%w: subsample name is required", ErrUnknownSubsample)
	}
	if err := c.validate(category, subsample); err != nil {
		return nil, err
	}
	if IsNominal(modifier) {
		modifier = Nominal
	}
	return c.subsampleTerm(subsample, category).weight(c.size, modifier)
}

// InstalledModifiers returns the modifiers actually installed in the scopes
// reachable by a query for category and subsample.
func (c *Composer) InstalledModifiers(category, subsample string) []string {
	set := make(map[string]struct{})
	add := func(t term) {
		for _, ct := range []*Container{t.inclusive, t.category} {
			if ct == nil {
				continue
			}
			for _, m := range ct.Modifiers() {
				set[m] = struct{}{}
			}
		}
	}
	if c.inclusive != nil {
		add(c.overallTerm(category))
	}
	if subsample != "" {
		add(c.subsampleTerm(subsample, category))
	}
	return sortedKeys(set)
}
