// Package correction evaluates binned one-dimensional corrections read from JSON files.
//
// A correction file looks like:
//
//	{
//	  "corrections": {
//	    "pileup": {
//	      "input": "Pileup_nTrueInt",
//	      "edges": [0, 20, 40, 80],
//	      "values": {"nominal": [0.9, 1.0, 1.2], "up": [...], "down": [...]}
//	    }
//	  }
//	}
//
// Systematic keys are "nominal", "up", "down" and, for multi-source
// corrections, "up_<label>" and "down_<label>".
package correction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
)

// Errors returned while parsing or evaluating corrections.
var (
	ErrUnknownCorrection = errors.New("unknown correction")
	ErrUnknownSystematic = errors.New("unknown systematic")
	ErrMalformed         = errors.New("malformed correction")
)

// Binned is a piecewise-constant function of one input variable.
type Binned struct {
	Input  string               `json:"input"`
	Edges  []float64            `json:"edges"`
	Values map[string][]float64 `json:"values"`
}

// Set is a named collection of corrections, usually one file.
type Set struct {
	Corrections map[string]*Binned `json:"corrections"`
}

// Parse decodes and validates a correction set.
func Parse(data []byte) (*Set, error) {
	var s Set
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if s.Corrections == nil {
		s.Corrections = map[string]*Binned{}
	}
	for name, b := range s.Corrections {
		if err := b.validate(); err != nil {
			return nil, fmt.Errorf("correction %q: %w", name, err)
		}
	}
	return &s, nil
}

func (b *Binned) validate() error {
	if b == nil {
		return fmt.Errorf("%w: empty definition", ErrMalformed)
	}
	if len(b.Edges) < 2 {
		return fmt.Errorf("%w: need at least two edges", ErrMalformed)
	}
	for i := 1; i < len(b.Edges); i++ {
		if !(b.Edges[i] > b.Edges[i-1]) {
			return fmt.Errorf("%w: edges must be strictly increasing", ErrMalformed)
		}
	}
	if _, ok := b.Values["nominal"]; !ok {
		return fmt.Errorf("%w: missing nominal values", ErrMalformed)
	}
	nbins := len(b.Edges) - 1
	for key, values := range b.Values {
		if len(values) != nbins {
			return fmt.Errorf("%w: %q has %d values for %d bins", ErrMalformed, key, len(values), nbins)
		}
	}
	return nil
}

// Get returns the named correction.
func (s *Set) Get(name string) (*Binned, error) {
	b, ok := s.Corrections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCorrection, name)
	}
	return b, nil
}

// Names lists the corrections in the set, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.Corrections))
	for name := range s.Corrections {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Evaluate looks up the named correction for every value of x.
func (s *Set) Evaluate(name, key string, x []float64) ([]float64, error) {
	b, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	return b.Evaluate(key, x)
}

// Keys returns the systematic keys carried by the correction, sorted.
func (b *Binned) Keys() []string {
	keys := make([]string, 0, len(b.Values))
	for key := range b.Values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Sources returns the labels of the "up_<label>" keys, sorted.
func (b *Binned) Sources() []string {
	var labels []string
	for key := range b.Values {
		if label, ok := strings.CutPrefix(key, "up_"); ok {
			labels = append(labels, label)
		}
	}
	slices.Sort(labels)
	return labels
}

// Evaluate maps every x to the value of its bin. Values outside the edges
// take the first or last bin.
func (b *Binned) Evaluate(key string, x []float64) ([]float64, error) {
	values, ok := b.Values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSystematic, key)
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = values[b.bin(v)]
	}
	return out, nil
}

func (b *Binned) bin(x float64) int {
	nbins := len(b.Edges) - 1
	if math.IsNaN(x) {
		return 0
	}
	i := sort.Search(len(b.Edges), func(i int) bool { return b.Edges[i] > x }) - 1
	return min(max(i, 0), nbins-1)
}
