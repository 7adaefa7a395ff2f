package weights

import "fmt"

// Availability holds the modifiers every scope of a sample can produce.
// It is derived from configuration alone, so histogram axes can be sized
// before any event is read.
type Availability struct {
	engine        *Engine
	inclusive     map[string]struct{}
	byCategory    map[string]map[string]struct{}
	subInclusive  map[string]map[string]struct{}
	subByCategory map[string]map[string]map[string]struct{}
}

func newAvailability(e *Engine) *Availability {
	a := &Availability{
		engine:        e,
		inclusive:     make(map[string]struct{}),
		byCategory:    make(map[string]map[string]struct{}),
		subInclusive:  make(map[string]map[string]struct{}),
		subByCategory: make(map[string]map[string]map[string]struct{}),
	}
	union := func(dst map[string]struct{}, names []string) {
		for _, name := range names {
			for _, m := range e.modifiersOf(name) {
				dst[m] = struct{}{}
			}
		}
	}

	union(a.inclusive, e.scope.Inclusive)
	if e.scope.IsSplitByCategory {
		for cat, names := range e.scope.ByCategory {
			set := make(map[string]struct{})
			union(set, names)
			a.byCategory[cat] = set
		}
	}
	for sub, spec := range e.scope.BySubsample {
		set := make(map[string]struct{})
		union(set, spec.Inclusive)
		a.subInclusive[sub] = set
		if !e.scope.IsSplitByCategory {
			continue
		}
		cats := make(map[string]map[string]struct{}, len(spec.ByCategory))
		for cat, names := range spec.ByCategory {
			catSet := make(map[string]struct{})
			union(catSet, names)
			cats[cat] = catSet
		}
		a.subByCategory[sub] = cats
	}
	return a
}

// ByWeight returns the modifiers of a single contributor for this sample.
func (a *Availability) ByWeight(name string) ([]string, error) {
	e := a.engine
	if def, ok := e.registry.Lookup(name); ok {
		mods := def.Modifiers(e.meta)
		if mods == nil {
			mods = []string{}
		}
		return mods, nil
	}
	if ext, ok := e.scope.External[name]; ok {
		if ext.HasVariations {
			return []string{UpModifier(name), DownModifier(name)}, nil
		}
		return []string{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownContributor, name)
}

// Inclusive returns the modifiers of the inclusive scope.
func (a *Availability) Inclusive() []string {
	return sortedKeys(a.inclusive)
}

// ByCategory returns every modifier a weight query for the given category
// and subsample can accept. Empty strings mean "no category" and
// "no subsample". "nominal" is always accepted and is not listed.
func (a *Availability) ByCategory(category, subsample string) []string {
	out := make(map[string]struct{}, len(a.inclusive))
	for m := range a.inclusive {
		out[m] = struct{}{}
	}
	split := a.engine.scope.IsSplitByCategory
	if category != "" && split {
		for m := range a.byCategory[category] {
			out[m] = struct{}{}
		}
	}
	if subsample != "" {
		for m := range a.subInclusive[subsample] {
			out[m] = struct{}{}
		}
		if category != "" && split {
			for m := range a.subByCategory[subsample][category] {
				out[m] = struct{}{}
			}
		}
	}
	return sortedKeys(out)
}

// Scopes enumerates every (category, subsample) pair a sample can be
// queried with, including the empty inclusive pair.
func (a *Availability) Scopes() [][2]string {
	e := a.engine
	cats := []string{""}
	if e.scope.IsSplitByCategory {
		cats = append(cats, e.Categories()...)
	}
	subs := append([]string{""}, e.Subsamples()...)
	out := make([][2]string, 0, len(cats)*len(subs))
	for _, c := range cats {
		for _, s := range subs {
			out = append(out, [2]string{c, s})
		}
	}
	return out
}
