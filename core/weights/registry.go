package weights

import (
	"errors"
	"fmt"
	"slices"
)

// Registry maps contributor names to their definitions.
// It is populated once at startup and read concurrently afterwards.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry builds a registry from an explicit list of definitions.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a definition. Registering a name twice is an error.
func (r *Registry) Register(d Definition) error {
	if d.Name == "" {
		return errors.New("contributor name cannot be empty")
	}
	if d.New == nil {
		return fmt.Errorf("contributor %q has no constructor", d.Name)
	}
	if _, ok := r.defs[d.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateContributor, d.Name)
	}
	r.defs[d.Name] = d
	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.defs[name]
	return ok
}

// Names returns all registered names in ascending order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
