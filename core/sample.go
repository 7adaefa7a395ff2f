package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/huangsam/weightflow/core/correction"
	"github.com/huangsam/weightflow/core/events"
	"github.com/huangsam/weightflow/core/weights"
	"github.com/huangsam/weightflow/internal/contract"
	"github.com/huangsam/weightflow/schema"
)

// ErrUnsupportedExternal is returned for an external weight placed in a
// subsample scope. External weights are read from event columns and can only
// be installed in the inclusive or a category scope.
var ErrUnsupportedExternal = errors.New("unsupported external weight")

// sampleRun fills the yields of one sample. It is read-only once built and
// shared by every chunk worker.
type sampleRun struct {
	cfg    *contract.Config
	sample contract.Sample
	engine *weights.Engine

	categories    map[string]events.Selection
	subsamples    map[string]events.Selection
	categoryKeys  []string // "" first, then the analysis categories
	subsampleKeys []string // "" first, then the sample's subsamples
	modifiers     map[[2]string][]string
	shapeNames    []string

	externalInclusive  []string
	externalByCategory map[string][]string
}

// newSampleRun builds the engine of a sample and resolves its modifier sets.
func newSampleRun(cfg *contract.Config, sample contract.Sample, loader *correction.Loader) (*sampleRun, error) {
	analysis := cfg.Analysis
	engine, err := buildEngine(analysis, sample, loader)
	if err != nil {
		return nil, err
	}

	r := &sampleRun{
		cfg:                cfg,
		sample:             sample,
		engine:             engine,
		categories:         analysis.Categories,
		subsamples:         analysis.Subsamples,
		categoryKeys:       append([]string{""}, analysis.CategoryNames()...),
		subsampleKeys:      append([]string{""}, engine.Subsamples()...),
		modifiers:          make(map[[2]string][]string),
		externalByCategory: make(map[string][]string),
	}
	// Shape variations are detector systematics and only apply to simulation
	if !cfg.NominalOnly && sample.Meta.IsMC {
		r.shapeNames = analysis.ShapeVariationNames()
	}

	avail := engine.Availability()
	for _, cat := range r.categoryKeys {
		for _, sub := range r.subsampleKeys {
			mods := []string{weights.Nominal}
			if !cfg.NominalOnly {
				mods = append(mods, avail.ByCategory(cat, sub)...)
			}
			r.modifiers[[2]string{cat, sub}] = mods
		}
	}

	if err := r.resolveExternals(); err != nil {
		return nil, err
	}
	return r, nil
}

// resolveExternals records where each declared external weight is installed.
func (r *sampleRun) resolveExternals() error {
	scope := r.sample.Scope
	if len(scope.External) == 0 {
		return nil
	}
	for _, name := range scope.Inclusive {
		if _, ok := scope.External[name]; ok {
			r.externalInclusive = append(r.externalInclusive, name)
		}
	}
	if scope.IsSplitByCategory {
		for cat, names := range scope.ByCategory {
			for _, name := range names {
				if _, ok := scope.External[name]; ok {
					r.externalByCategory[cat] = append(r.externalByCategory[cat], name)
				}
			}
		}
	}
	for sub, spec := range scope.BySubsample {
		names := append([]string{}, spec.Inclusive...)
		for _, catNames := range spec.ByCategory {
			names = append(names, catNames...)
		}
		for _, name := range names {
			if _, ok := scope.External[name]; ok {
				return fmt.Errorf("%w: %q in subsample %q of sample %q", ErrUnsupportedExternal, name, sub, r.sample.Name)
			}
		}
	}
	return nil
}

// run reads every file of the sample and fills its yields. Chunks are
// processed by a bounded pool of workers and merged in read order, so the
// sums do not depend on scheduling.
func (r *sampleRun) run(ctx context.Context) ([]schema.Yield, schema.SampleSummary, error) {
	summary := schema.SampleSummary{Sample: r.sample.Name, Files: len(r.sample.Files)}

	var mu sync.Mutex
	results := make(map[int]*accumulator)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	seq := 0
	for _, path := range r.sample.Files {
		err := events.ReadChunks(gctx, path, r.cfg.ChunkSize, func(c events.Chunk) error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slot := seq
			seq++
			summary.Events += int64(c.Events.Len())
			g.Go(func() error {
				acc, err := r.processChunk(c.Events)
				if err != nil {
					return fmt.Errorf("sample %q, %s at event %d: %w", r.sample.Name, c.Source, c.Offset, err)
				}
				mu.Lock()
				results[slot] = acc
				mu.Unlock()
				return nil
			})
			return nil
		})
		if err != nil {
			// A worker failure cancels reading; report the worker's error.
			if werr := g.Wait(); werr != nil {
				return nil, summary, werr
			}
			return nil, summary, err
		}
	}
	if err := g.Wait(); err != nil {
		return nil, summary, err
	}
	summary.Chunks = seq

	total := newAccumulator()
	for i := range seq {
		total.merge(results[i])
	}
	return total.yields(r.sample.Name), summary, nil
}

// processChunk composes the weights of one chunk at the nominal shape and
// at every shape variation.
func (r *sampleRun) processChunk(ev *events.Table) (*accumulator, error) {
	acc := newAccumulator()
	if err := r.fill(acc, ev, weights.Nominal); err != nil {
		return nil, err
	}
	for _, shape := range r.shapeNames {
		shifted, err := ev.WithAliases(r.cfg.Analysis.ShapeVariations[shape])
		if err != nil {
			return nil, fmt.Errorf("shape variation %q: %w", shape, err)
		}
		if err := r.fill(acc, shifted, shape); err != nil {
			return nil, fmt.Errorf("shape variation %q: %w", shape, err)
		}
	}
	return acc, nil
}

// fill adds the yields of every (category, subsample) cell of one composed chunk.
// Under a shape variation only the nominal weight is filled, under the shape's name.
func (r *sampleRun) fill(acc *accumulator, ev *events.Table, shape string) error {
	comp := r.engine.NewComposer(ev, shape)
	if err := comp.Compute(); err != nil {
		return err
	}
	nominalShape := weights.IsNominal(shape)
	if err := r.installExternals(comp, ev, nominalShape); err != nil {
		return err
	}

	catMasks, err := masks(ev, r.categoryKeys, r.categories)
	if err != nil {
		return err
	}
	subMasks, err := masks(ev, r.subsampleKeys, r.subsamples)
	if err != nil {
		return err
	}

	for _, cat := range r.categoryKeys {
		for _, sub := range r.subsampleKeys {
			mask := combine(catMasks[cat], subMasks[sub])
			mods := r.modifiers[[2]string{cat, sub}]
			if !nominalShape {
				mods = mods[:1]
			}
			for _, mod := range mods {
				w, err := comp.GetWeight(cat, sub, mod)
				if err != nil {
					return err
				}
				variation := mod
				if !nominalShape {
					variation = shape
				}
				acc.add(cellKey{category: cat, subsample: sub, variation: variation}, w, mask)
			}
		}
	}
	return nil
}

// installExternals supplies declared external weights from event columns:
// "<name>" for the nominal weight and "<name>Up" / "<name>Down" for its variations.
func (r *sampleRun) installExternals(comp *weights.Composer, ev *events.Table, nominalShape bool) error {
	install := func(name, category string) error {
		nominal, err := ev.Column(name)
		if err != nil {
			return fmt.Errorf("external weight %q: %w", name, err)
		}
		var up, down []float64
		if r.sample.Scope.External[name].HasVariations && nominalShape {
			if up, err = ev.Column(weights.UpModifier(name)); err != nil {
				return fmt.Errorf("external weight %q: %w", name, err)
			}
			if down, err = ev.Column(weights.DownModifier(name)); err != nil {
				return fmt.Errorf("external weight %q: %w", name, err)
			}
		}
		return comp.AddWeight(name, nominal, up, down, category)
	}

	for _, name := range r.externalInclusive {
		if err := install(name, ""); err != nil {
			return err
		}
	}
	for _, cat := range r.categoryKeys[1:] {
		for _, name := range r.externalByCategory[cat] {
			if err := install(name, cat); err != nil {
				return err
			}
		}
	}
	return nil
}

// masks evaluates the named selections on a chunk. The empty key maps to a nil mask.
func masks(ev *events.Table, keys []string, selections map[string]events.Selection) (map[string][]bool, error) {
	out := make(map[string][]bool, len(keys))
	for _, key := range keys {
		if key == "" {
			out[key] = nil
			continue
		}
		mask, err := selections[key].Mask(ev)
		if err != nil {
			return nil, fmt.Errorf("selection %q: %w", key, err)
		}
		out[key] = mask
	}
	return out, nil
}

// combine returns the conjunction of two masks where nil selects everything.
func combine(a, b []bool) []bool {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return events.And(a, b)
	}
}
