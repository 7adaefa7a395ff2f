package weights

import (
	"fmt"
	"maps"
	"slices"
)

// ScopeSpec lists the contributors of one scope: inclusive names apply to
// every event, by-category names only inside the named category.
type ScopeSpec struct {
	Inclusive  []string
	ByCategory map[string][]string
}

// ExternalWeight declares a weight that collaborating code supplies through
// Composer.AddWeight instead of a registered contributor.
type ExternalWeight struct {
	HasVariations bool
}

// SampleScope is the weight configuration of one sample.
type SampleScope struct {
	Inclusive         []string
	IsSplitByCategory bool
	ByCategory        map[string][]string
	BySubsample       map[string]ScopeSpec
	External          map[string]ExternalWeight
}

// Clone returns a deep copy of the scope.
func (s SampleScope) Clone() SampleScope {
	out := SampleScope{
		Inclusive:         slices.Clone(s.Inclusive),
		IsSplitByCategory: s.IsSplitByCategory,
		ByCategory:        cloneLists(s.ByCategory),
		External:          maps.Clone(s.External),
	}
	if s.BySubsample != nil {
		out.BySubsample = make(map[string]ScopeSpec, len(s.BySubsample))
		for name, spec := range s.BySubsample {
			out.BySubsample[name] = ScopeSpec{
				Inclusive:  slices.Clone(spec.Inclusive),
				ByCategory: cloneLists(spec.ByCategory),
			}
		}
	}
	return out
}

func cloneLists(in map[string][]string) map[string][]string {
	if in == nil {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = slices.Clone(v)
	}
	return out
}

// resolution is how a configured name is handled by the composer.
type resolution int

const (
	resolveRegistered resolution = iota
	resolveExternal
	resolveSkipped
)

// scopeName identifies a scope for error messages.
func scopeName(subsample, category string) string {
	switch {
	case subsample == "" && category == "":
		return "inclusive"
	case subsample == "":
		return "bycategory/" + category
	case category == "":
		return "bysubsample/" + subsample + "/inclusive"
	default:
		return "bysubsample/" + subsample + "/bycategory/" + category
	}
}

// resolveName classifies a configured contributor name and records the
// outcome so the composer never has to consult the registry again.
func (e *Engine) resolveName(subsample, category, name string) (resolution, error) {
	if res, ok := e.resolved[name]; ok {
		return res, nil
	}
	if e.registry.Has(name) {
		e.resolved[name] = resolveRegistered
		return resolveRegistered, nil
	}
	if _, ok := e.scope.External[name]; ok {
		e.resolved[name] = resolveExternal
		return resolveExternal, nil
	}
	if e.opts.Permissive {
		e.warn(fmt.Sprintf("sample %q: contributor %q in scope %s is not registered and will be skipped",
			e.meta.Sample, name, scopeName(subsample, category)))
		e.resolved[name] = resolveSkipped
		return resolveSkipped, nil
	}
	return resolveSkipped, &ConfigError{
		Sample:      e.meta.Sample,
		Scope:       scopeName(subsample, category),
		Contributor: name,
		Err:         ErrUnknownContributor,
	}
}

// validateScope checks every configured name and category once at construction.
func (e *Engine) validateScope() error {
	check := func(subsample, category string, names []string) error {
		seen := make(map[string]struct{}, len(names))
		for _, name := range names {
			if _, dup := seen[name]; dup {
				return &ConfigError{
					Sample:      e.meta.Sample,
					Scope:       scopeName(subsample, category),
					Contributor: name,
					Err:         ErrDuplicateWeight,
				}
			}
			seen[name] = struct{}{}
			if _, err := e.resolveName(subsample, category, name); err != nil {
				return err
			}
		}
		return nil
	}
	checkCategory := func(subsample, category string) error {
		if _, ok := e.categories[category]; !ok {
			return &ConfigError{
				Sample: e.meta.Sample,
				Scope:  scopeName(subsample, category),
				Err:    ErrUnknownCategory,
			}
		}
		return nil
	}

	for _, name := range slices.Sorted(maps.Keys(e.scope.External)) {
		if e.registry.Has(name) {
			return &ConfigError{
				Sample:      e.meta.Sample,
				Scope:       "external",
				Contributor: name,
				Err:         ErrExternalRegistered,
			}
		}
	}
	if !e.scope.IsSplitByCategory {
		if err := e.checkUnsplit(); err != nil {
			return err
		}
	}

	if err := check("", "", e.scope.Inclusive); err != nil {
		return err
	}
	if e.scope.IsSplitByCategory {
		for _, cat := range sortedListKeys(e.scope.ByCategory) {
			if err := checkCategory("", cat); err != nil {
				return err
			}
			if err := check("", cat, e.scope.ByCategory[cat]); err != nil {
				return err
			}
		}
	}
	for _, sub := range sortedSpecKeys(e.scope.BySubsample) {
		spec := e.scope.BySubsample[sub]
		if err := check(sub, "", spec.Inclusive); err != nil {
			return err
		}
		if !e.scope.IsSplitByCategory {
			continue
		}
		for _, cat := range sortedListKeys(spec.ByCategory) {
			if err := checkCategory(sub, cat); err != nil {
				return err
			}
			if err := check(sub, cat, spec.ByCategory[cat]); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkUnsplit rejects category lists on a sample that is not split by
// category, since the composer never reads them.
func (e *Engine) checkUnsplit() error {
	unused := func(subsample string, lists map[string][]string) error {
		for _, cat := range sortedListKeys(lists) {
			if len(lists[cat]) == 0 {
				continue
			}
			if e.opts.Permissive {
				e.warn(fmt.Sprintf("sample %q is not split by category, scope %s is ignored",
					e.meta.Sample, scopeName(subsample, cat)))
				continue
			}
			return &ConfigError{
				Sample:      e.meta.Sample,
				Scope:       scopeName(subsample, cat),
				Contributor: lists[cat][0],
				Err:         ErrUnsplitCategory,
			}
		}
		return nil
	}
	if err := unused("", e.scope.ByCategory); err != nil {
		return err
	}
	for _, sub := range sortedSpecKeys(e.scope.BySubsample) {
		if err := unused(sub, e.scope.BySubsample[sub].ByCategory); err != nil {
			return err
		}
	}
	return nil
}

func sortedListKeys(m map[string][]string) []string {
	return slices.Sorted(maps.Keys(m))
}

func sortedSpecKeys(m map[string]ScopeSpec) []string {
	return slices.Sorted(maps.Keys(m))
}
