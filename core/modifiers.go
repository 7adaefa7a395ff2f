package core

import (
	"github.com/huangsam/weightflow/core/correction"
	"github.com/huangsam/weightflow/internal/contract"
	"github.com/huangsam/weightflow/schema"
)

// BuildModifiers resolves the modifier availability of every configured
// sample. It reads no events, only the configuration and the correction file.
func BuildModifiers(cfg *contract.Config) (*schema.ModifiersOutput, error) {
	loader, err := correction.NewLoader(correction.DefaultCacheSize)
	if err != nil {
		return nil, err
	}

	output := &schema.ModifiersOutput{}
	for _, sample := range cfg.Analysis.Samples {
		engine, err := buildEngine(cfg.Analysis, sample, loader)
		if err != nil {
			return nil, err
		}
		avail := engine.Availability()

		for _, scope := range avail.Scopes() {
			output.Scopes = append(output.Scopes, schema.ModifierRow{
				Sample:    sample.Name,
				Category:  scope[0],
				Subsample: scope[1],
				Modifiers: avail.ByCategory(scope[0], scope[1]),
			})
		}
		for _, name := range configuredNames(sample.Scope) {
			mods, err := avail.ByWeight(name)
			if err != nil {
				// Skipped in permissive mode
				continue
			}
			output.Weights = append(output.Weights, schema.WeightModifiers{
				Sample:    sample.Name,
				Weight:    name,
				Modifiers: mods,
			})
		}
	}
	return output, nil
}
