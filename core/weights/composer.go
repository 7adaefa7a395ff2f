package weights

import (
	"fmt"
	"maps"
	"slices"
)

// Composer builds the weight containers of one chunk of events.
// A Composer is owned by a single goroutine and discarded with its chunk.
type Composer struct {
	engine         *Engine
	events         Events
	size           int
	shapeVariation string

	inclusive     *Container
	byCategory    map[string]*Container
	subInclusive  map[string]*Container
	subByCategory map[string]map[string]*Container

	evaluations map[string]int
	computed    bool
}

// NewComposer prepares a composer for one chunk. An empty shapeVariation
// is treated as nominal.
func (e *Engine) NewComposer(events Events, shapeVariation string) *Composer {
	if shapeVariation == "" {
		shapeVariation = Nominal
	}
	return &Composer{
		engine:         e,
		events:         events,
		size:           events.Len(),
		shapeVariation: shapeVariation,
		evaluations:    make(map[string]int),
	}
}

// ShapeVariation returns the shape variation this composer was built for.
func (c *Composer) ShapeVariation() string {
	return c.shapeVariation
}

// Size returns the number of events in the chunk.
func (c *Composer) Size() int {
	return c.size
}

// Evaluations returns how many times each contributor was computed.
func (c *Composer) Evaluations() map[string]int {
	return maps.Clone(c.evaluations)
}

// Compute evaluates every configured contributor and fills the scope
// containers. Scopes are processed inclusive first, then by category, then
// by subsample. On error no weight can be queried from this composer.
func (c *Composer) Compute() error {
	c.computed = false
	e := c.engine
	cache := make(map[string]Result)
	instances := make(map[string]Contributor)

	c.inclusive = NewContainer(c.size)
	c.byCategory = make(map[string]*Container)
	c.subInclusive = make(map[string]*Container)
	c.subByCategory = make(map[string]map[string]*Container)

	if err := c.fill(c.inclusive, e.scope.Inclusive, cache, instances); err != nil {
		return err
	}

	if e.scope.IsSplitByCategory {
		for _, cat := range sortedListKeys(e.scope.ByCategory) {
			names := e.scope.ByCategory[cat]
			if len(names) == 0 {
				continue
			}
			ct := NewContainer(c.size)
			if err := c.fill(ct, names, cache, instances); err != nil {
				return err
			}
			c.byCategory[cat] = ct
		}
	}

	subs := sortedSpecKeys(e.scope.BySubsample)
	for _, sub := range subs {
		spec := e.scope.BySubsample[sub]
		if len(spec.Inclusive) == 0 {
			continue
		}
		ct := NewContainer(c.size)
		if err := c.fill(ct, spec.Inclusive, cache, instances); err != nil {
			return err
		}
		c.subInclusive[sub] = ct
	}
	if e.scope.IsSplitByCategory {
		for _, sub := range subs {
			spec := e.scope.BySubsample[sub]
			for _, cat := range sortedListKeys(spec.ByCategory) {
				names := spec.ByCategory[cat]
				if len(names) == 0 {
					continue
				}
				ct := NewContainer(c.size)
				if err := c.fill(ct, names, cache, instances); err != nil {
					return err
				}
				if c.subByCategory[sub] == nil {
					c.subByCategory[sub] = make(map[string]*Container)
				}
				c.subByCategory[sub][cat] = ct
			}
		}
	}

	c.computed = true
	return nil
}

// fill adds every registered name of a scope to its container, evaluating
// each contributor at most once per chunk.
func (c *Composer) fill(ct *Container, names []string, cache map[string]Result, instances map[string]Contributor) error {
	for _, name := range names {
		if c.engine.resolved[name] != resolveRegistered {
			continue
		}
		res, ok := cache[name]
		if !ok {
			var err error
			res, err = c.evaluate(name, instances)
			if err != nil {
				return err
			}
			cache[name] = res
		}
		if err := ct.Add(name, res); err != nil {
			return fmt.Errorf("failed to add weight %q: %w", name, err)
		}
	}
	return nil
}

// evaluate instantiates and computes a single contributor and checks the
// result against its static declaration.
func (c *Composer) evaluate(name string, instances map[string]Contributor) (Result, error) {
	e := c.engine
	def, _ := e.registry.Lookup(name)

	inst, ok := instances[name]
	if !ok {
		var err error
		inst, err = def.New(e.meta)
		if err != nil {
			return nil, fmt.Errorf("failed to create contributor %q: %w", name, err)
		}
		instances[name] = inst
	}

	c.evaluations[name]++
	res, err := inst.Compute(c.events, c.size, c.shapeVariation)
	if err != nil {
		return nil, fmt.Errorf("contributor %q failed: %w", name, err)
	}
	if err := checkShape(name, res, c.size); err != nil {
		return nil, err
	}
	if err := c.checkVariations(def, res); err != nil {
		return nil, err
	}
	return res, nil
}

// checkVariations verifies that a result carries exactly the variations its
// definition declares. Under a non-nominal shape variation a varied
// contributor may return its nominal weight only.
func (c *Composer) checkVariations(def Definition, r Result) error {
	labels := def.Labels(c.engine.meta)
	nominalShape := c.shapeVariation == Nominal

	switch res := r.(type) {
	case SimpleResult:
		if !res.HasVariations() {
			if def.HasVariations && nominalShape {
				return fmt.Errorf("%w: contributor %q declares variations but returned none", ErrUnexpectedVariation, def.Name)
			}
			return nil
		}
		if !def.HasVariations {
			return fmt.Errorf("%w: contributor %q declares no variations but returned up/down", ErrUnexpectedVariation, def.Name)
		}
		if len(labels) > 0 {
			return fmt.Errorf("%w: contributor %q declares labels %v but returned a simple variation", ErrUnexpectedVariation, def.Name, labels)
		}
		if res.Up == nil || res.Down == nil {
			return fmt.Errorf("%w: contributor %q must return both up and down", ErrUnexpectedVariation, def.Name)
		}
	case MultiResult:
		if !def.HasVariations {
			return fmt.Errorf("%w: contributor %q declares no variations but returned %v", ErrUnexpectedVariation, def.Name, res.Labels)
		}
		if len(res.Labels) == 0 && !nominalShape {
			return nil
		}
		if len(labels) == 0 {
			return fmt.Errorf("%w: contributor %q declares a simple variation but returned labels %v", ErrUnexpectedVariation, def.Name, res.Labels)
		}
		got := slices.Clone(res.Labels)
		want := slices.Clone(labels)
		slices.Sort(got)
		slices.Sort(want)
		if !slices.Equal(got, want) {
			return fmt.Errorf("%w: contributor %q returned labels %v, declared %v", ErrUnexpectedVariation, def.Name, res.Labels, labels)
		}
	}
	return nil
}

// AddWeight installs a weight computed outside the engine. An empty
// category targets the inclusive scope. up and down may both be nil.
func (c *Composer) AddWeight(name string, nominal, up, down []float64, category string) error {
	if !c.computed {
		return ErrNotComputed
	}
	if (up == nil) != (down == nil) {
		return fmt.Errorf("%w: weight %q needs both up and down or neither", ErrUnexpectedVariation, name)
	}
	if category == "" {
		return c.inclusive.AddSimple(name, nominal, up, down)
	}
	if !c.engine.scope.IsSplitByCategory {
		return fmt.Errorf("%w: sample %q is not split by category", ErrUnknownCategory, c.engine.meta.Sample)
	}
	if _, ok := c.engine.categories[category]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	ct, ok := c.byCategory[category]
	if !ok {
		ct = NewContainer(c.size)
		c.byCategory[category] = ct
	}
	return ct.AddSimple(name, nominal, up, down)
}
