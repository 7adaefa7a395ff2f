package weights

import (
	"maps"
	"slices"
)

// Options tune how an Engine treats its scope configuration.
type Options struct {
	// Categories lists the analysis categories. When empty, the categories
	// named in the scope configuration are used.
	Categories []string

	// Permissive skips unregistered contributor names instead of failing.
	Permissive bool

	// Warn receives permissive-mode warnings. Nil discards them.
	Warn func(msg string)
}

// Engine binds a registry to the scope configuration of one sample.
// It is immutable after construction and may be shared by many goroutines,
// each creating its own Composer per chunk.
type Engine struct {
	registry   *Registry
	scope      SampleScope
	meta       Metadata
	opts       Options
	categories map[string]struct{}
	subsamples map[string]struct{}
	resolved   map[string]resolution
	avail      *Availability
}

// NewEngine validates the scope configuration and resolves its availability.
func NewEngine(registry *Registry, scope SampleScope, meta Metadata, opts Options) (*Engine, error) {
	e := &Engine{
		registry:   registry,
		scope:      scope.Clone(),
		meta:       meta,
		opts:       opts,
		categories: make(map[string]struct{}),
		subsamples: make(map[string]struct{}),
		resolved:   make(map[string]resolution),
	}

	if len(opts.Categories) > 0 {
		for _, c := range opts.Categories {
			e.categories[c] = struct{}{}
		}
	} else {
		for c := range scope.ByCategory {
			e.categories[c] = struct{}{}
		}
		for _, spec := range scope.BySubsample {
			for c := range spec.ByCategory {
				e.categories[c] = struct{}{}
			}
		}
	}
	for _, s := range meta.Subsamples {
		e.subsamples[s] = struct{}{}
	}
	for s := range scope.BySubsample {
		e.subsamples[s] = struct{}{}
	}

	if err := e.validateScope(); err != nil {
		return nil, err
	}
	e.avail = newAvailability(e)
	return e, nil
}

// Availability returns the static modifier sets of this sample.
func (e *Engine) Availability() *Availability {
	return e.avail
}

// Metadata returns the sample metadata the engine was built for.
func (e *Engine) Metadata() Metadata {
	return e.meta
}

// IsSplitByCategory reports whether the sample has category-specific weights.
func (e *Engine) IsSplitByCategory() bool {
	return e.scope.IsSplitByCategory
}

// Categories returns the known categories in ascending order.
func (e *Engine) Categories() []string {
	return slices.Sorted(maps.Keys(e.categories))
}

// Subsamples returns the known subsamples in ascending order.
func (e *Engine) Subsamples() []string {
	return slices.Sorted(maps.Keys(e.subsamples))
}

func (e *Engine) warn(msg string) {
	if e.opts.Warn != nil {
		e.opts.Warn(msg)
	}
}

// modifiersOf returns the static modifiers of a configured name.
func (e *Engine) modifiersOf(name string) []string {
	switch e.resolved[name] {
	case resolveRegistered:
		def, _ := e.registry.Lookup(name)
		return def.Modifiers(e.meta)
	case resolveExternal:
		if e.scope.External[name].HasVariations {
			return []string{UpModifier(name), DownModifier(name)}
		}
	}
	return nil
}
