package core

import (
	"fmt"
	"maps"
	"slices"

	"github.com/huangsam/weightflow/core/contrib"
	"github.com/huangsam/weightflow/core/correction"
	"github.com/huangsam/weightflow/core/weights"
	"github.com/huangsam/weightflow/internal/contract"
)

// buildEngine binds the built-in registry to the scope configuration of one sample.
// The loader is shared so a correction file is parsed once per run.
func buildEngine(analysis *contract.Analysis, sample contract.Sample, loader *correction.Loader) (*weights.Engine, error) {
	params := analysis.Params
	params.Loader = loader

	registry, err := contrib.NewRegistry(params)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	engine, err := weights.NewEngine(registry, sample.Scope, sample.Meta, weights.Options{
		Categories: analysis.CategoryNames(),
		Permissive: analysis.Permissive,
		Warn: func(msg string) {
			contract.LogWarnf("%s", msg)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sample %q: %w", sample.Name, err)
	}
	return engine, nil
}

// configuredNames returns every weight name a sample scope refers to, sorted and unique.
func configuredNames(scope weights.SampleScope) []string {
	set := make(map[string]struct{})
	add := func(names []string) {
		for _, n := range names {
			set[n] = struct{}{}
		}
	}
	add(scope.Inclusive)
	for _, names := range scope.ByCategory {
		add(names)
	}
	for _, spec := range scope.BySubsample {
		add(spec.Inclusive)
		for _, names := range spec.ByCategory {
			add(names)
		}
	}
	return slices.Sorted(maps.Keys(set))
}
