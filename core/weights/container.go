package weights

import "fmt"

// contribution is one named entry of a Container.
type contribution struct {
	name       string
	nominal    []float64
	variations map[string][]float64
}

// Container accumulates the weights of one scope and returns their product.
type Container struct {
	size      int
	entries   []contribution
	names     map[string]struct{}
	modifiers map[string]int // modifier -> index into entries
}

// NewContainer returns an empty container for size events.
func NewContainer(size int) *Container {
	return &Container{
		size:      size,
		names:     make(map[string]struct{}),
		modifiers: make(map[string]int),
	}
}

// Len returns the number of events the container was sized for.
func (c *Container) Len() int {
	return c.size
}

// Add installs a contributor result under name.
func (c *Container) Add(name string, r Result) error {
	switch res := r.(type) {
	case SimpleResult:
		return c.AddSimple(name, res.Nominal, res.Up, res.Down)
	case MultiResult:
		return c.AddMulti(name, res.Nominal, res.Labels, res.Up, res.Down)
	default:
		return fmt.Errorf("%w: weight %q has no result", ErrShapeMismatch, name)
	}
}

// AddSimple installs a nominal weight and, when given, its <name>Up and
// <name>Down variations.
func (c *Container) AddSimple(name string, nominal, up, down []float64) error {
	vars := make(map[string][]float64, 2)
	if up != nil {
		vars[UpModifier(name)] = up
	}
	if down != nil {
		vars[DownModifier(name)] = down
	}
	return c.install(name, nominal, vars)
}

// AddMulti installs a nominal weight and the <name>_<label>Up/Down
// variations of every label.
func (c *Container) AddMulti(name string, nominal []float64, labels []string, up, down [][]float64) error {
	if len(up) != len(labels) || len(down) != len(labels) {
		return fmt.Errorf("%w: weight %q has %d labels but %d up and %d down arrays", ErrShapeMismatch, name, len(labels), len(up), len(down))
	}
	vars := make(map[string][]float64, 2*len(labels))
	for i, label := range labels {
		vars[VariationModifier(name, label, true)] = up[i]
		vars[VariationModifier(name, label, false)] = down[i]
	}
	return c.install(name, nominal, vars)
}

func (c *Container) install(name string, nominal []float64, vars map[string][]float64) error {
	if _, ok := c.names[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateWeight, name)
	}
	if len(nominal) != c.size {
		return fmt.Errorf("%w: weight %q has %d entries, expected %d", ErrShapeMismatch, name, len(nominal), c.size)
	}
	for m, arr := range vars {
		if len(arr) != c.size {
			return fmt.Errorf("%w: modifier %q has %d entries, expected %d", ErrShapeMismatch, m, len(arr), c.size)
		}
		if _, ok := c.modifiers[m]; ok {
			return fmt.Errorf("%w: modifier %q", ErrDuplicateWeight, m)
		}
	}

	idx := len(c.entries)
	c.entries = append(c.entries, contribution{name: name, nominal: nominal, variations: vars})
	c.names[name] = struct{}{}
	for m := range vars {
		c.modifiers[m] = idx
	}
	return nil
}

// HasModifier reports whether modifier is installed in this container.
func (c *Container) HasModifier(modifier string) bool {
	_, ok := c.modifiers[modifier]
	return ok
}

// Modifiers returns the installed modifiers in ascending order.
func (c *Container) Modifiers() []string {
	set := make(map[string]struct{}, len(c.modifiers))
	for m := range c.modifiers {
		set[m] = struct{}{}
	}
	return sortedKeys(set)
}

// Names returns the contributor names in insertion order.
func (c *Container) Names() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.name
	}
	return out
}

// Weight returns the product of every contribution. For a non-nominal
// modifier the contribution owning it is replaced by its varied array.
func (c *Container) Weight(modifier string) ([]float64, error) {
	owner := -1
	if !IsNominal(modifier) {
		idx, ok := c.modifiers[modifier]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownModifier, modifier)
		}
		owner = idx
	}

	out := Ones(c.size)
	for i, e := range c.entries {
		arr := e.nominal
		if i == owner {
			arr = e.variations[modifier]
		}
		for j, v := range arr {
			out[j] *= v
		}
	}
	return out, nil
}

// multiply returns the element-wise product of a and b.
func multiply(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out
}
