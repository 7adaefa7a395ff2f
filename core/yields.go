package core

import (
	"cmp"
	"slices"

	"github.com/huangsam/weightflow/core/weights"
	"github.com/huangsam/weightflow/schema"
)

// cellKey identifies one histogram bin of a sample.
type cellKey struct {
	category  string
	subsample string
	variation string
}

// sums holds the running totals of one cell.
type sums struct {
	sumw    float64
	sumw2   float64
	entries int64
}

// accumulator collects weighted sums per cell. One accumulator belongs to one
// chunk; chunks are merged afterwards in read order.
type accumulator struct {
	cells map[cellKey]*sums
}

func newAccumulator() *accumulator {
	return &accumulator{cells: make(map[cellKey]*sums)}
}

// add sums the weights of the events selected by mask. A nil mask selects all.
func (a *accumulator) add(key cellKey, w []float64, mask []bool) {
	s, ok := a.cells[key]
	if !ok {
		s = &sums{}
		a.cells[key] = s
	}
	for i, v := range w {
		if mask != nil && !mask[i] {
			continue
		}
		s.sumw += v
		s.sumw2 += v * v
		s.entries++
	}
}

// merge adds the totals of other into a.
func (a *accumulator) merge(other *accumulator) {
	if other == nil {
		return
	}
	for key, o := range other.cells {
		s, ok := a.cells[key]
		if !ok {
			s = &sums{}
			a.cells[key] = s
		}
		s.sumw += o.sumw
		s.sumw2 += o.sumw2
		s.entries += o.entries
	}
}

// yields returns the accumulated cells sorted by category, subsample and
// variation, with the nominal variation first in every cell.
func (a *accumulator) yields(sample string) []schema.Yield {
	out := make([]schema.Yield, 0, len(a.cells))
	for key, s := range a.cells {
		out = append(out, schema.Yield{
			Sample:    sample,
			Category:  key.category,
			Subsample: key.subsample,
			Variation: key.variation,
			SumW:      s.sumw,
			SumW2:     s.sumw2,
			Entries:   s.entries,
		})
	}
	slices.SortFunc(out, compareYields)
	return out
}

func compareYields(x, y schema.Yield) int {
	if c := cmp.Compare(x.Sample, y.Sample); c != 0 {
		return c
	}
	if c := cmp.Compare(x.Category, y.Category); c != 0 {
		return c
	}
	if c := cmp.Compare(x.Subsample, y.Subsample); c != 0 {
		return c
	}
	xn, yn := weights.IsNominal(x.Variation), weights.IsNominal(y.Variation)
	switch {
	case xn && !yn:
		return -1
	case yn && !xn:
		return 1
	}
	return cmp.Compare(x.Variation, y.Variation)
}
