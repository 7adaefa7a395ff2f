package events

import "fmt"

// Columns is the subset of an event collection a selection needs.
type Columns interface {
	Len() int
	Column(name string) ([]float64, error)
}

// Cut keeps events whose column lies in [Min, Max). A nil bound is open.
type Cut struct {
	Column string   `mapstructure:"column" json:"column" yaml:"column"`
	Min    *float64 `mapstructure:"min" json:"min,omitempty" yaml:"min,omitempty"`
	Max    *float64 `mapstructure:"max" json:"max,omitempty" yaml:"max,omitempty"`
}

// Selection is a conjunction of cuts. An empty selection keeps every event.
type Selection []Cut

// Mask evaluates the selection on every event.
func (s Selection) Mask(ev Columns) ([]bool, error) {
	mask := make([]bool, ev.Len())
	for i := range mask {
		mask[i] = true
	}
	for _, cut := range s {
		col, err := ev.Column(cut.Column)
		if err != nil {
			return nil, fmt.Errorf("selection on %q: %w", cut.Column, err)
		}
		for i, v := range col {
			if !mask[i] {
				continue
			}
			if cut.Min != nil && v < *cut.Min {
				mask[i] = false
			} else if cut.Max != nil && v >= *cut.Max {
				mask[i] = false
			}
		}
	}
	return mask, nil
}

// And returns the element-wise conjunction of two masks of equal length.
func And(a, b []bool) []bool {
	out := make([]bool, len(a))
	for i := range a {
		out[i] = a[i] && b[i]
	}
	return out
}
