// Package events has the columnar event collection and its readers.
package events

import (
	"errors"
	"fmt"
	"slices"
)

// Errors returned by the event layer.
var (
	ErrMissingColumn     = errors.New("missing column")
	ErrLengthMismatch    = errors.New("column length mismatch")
	ErrUnsupportedColumn = errors.New("unsupported column")
	ErrNullValue         = errors.New("null value")
)

// Table is a flat columnar event collection. Columns are shared between a
// table and its slices and must be treated as read-only once added.
type Table struct {
	n     int
	names []string
	cols  map[string][]float64
	nulls map[string][]bool // Only columns that hold nulls
}

// NewTable returns an empty table of n events.
func NewTable(n int) *Table {
	return &Table{n: n, cols: make(map[string][]float64), nulls: make(map[string][]bool)}
}

// FromColumns builds a table from named columns of equal length.
func FromColumns(cols map[string][]float64) (*Table, error) {
	n := -1
	for _, name := range sortedNames(cols) {
		if n < 0 {
			n = len(cols[name])
		}
		if len(cols[name]) != n {
			return nil, fmt.Errorf("%w: column %q has %d events, expected %d", ErrLengthMismatch, name, len(cols[name]), n)
		}
	}
	if n < 0 {
		n = 0
	}
	t := NewTable(n)
	for _, name := range sortedNames(cols) {
		t.names = append(t.names, name)
		t.cols[name] = cols[name]
	}
	return t, nil
}

// Set adds or replaces a column.
func (t *Table) Set(name string, values []float64) error {
	if len(values) != t.n {
		return fmt.Errorf("%w: column %q has %d events, expected %d", ErrLengthMismatch, name, len(values), t.n)
	}
	if _, ok := t.cols[name]; !ok {
		t.names = append(t.names, name)
	}
	t.cols[name] = values
	delete(t.nulls, name)
	return nil
}

// setNulls marks the events of a column that had no value.
func (t *Table) setNulls(name string, mask []bool) error {
	if len(mask) != t.n {
		return fmt.Errorf("%w: null mask of %q has %d events, expected %d", ErrLengthMismatch, name, len(mask), t.n)
	}
	t.nulls[name] = mask
	return nil
}

// Len returns the number of events.
func (t *Table) Len() int {
	return t.n
}

// Column returns the values of the named column. A column holding a null
// for any event of the table is an error.
func (t *Table) Column(name string) ([]float64, error) {
	col, ok := t.cols[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
	}
	if i := slices.Index(t.nulls[name], true); i >= 0 {
		return nil, fmt.Errorf("%w: column %q at event %d", ErrNullValue, name, i)
	}
	return col, nil
}

// Has reports whether the column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// Names returns the column names in insertion order.
func (t *Table) Names() []string {
	return slices.Clone(t.names)
}

// Slice returns the events in [lo, hi). The result shares storage with t.
func (t *Table) Slice(lo, hi int) *Table {
	lo = max(lo, 0)
	hi = min(hi, t.n)
	if hi < lo {
		hi = lo
	}
	out := &Table{n: hi - lo, names: slices.Clone(t.names), cols: make(map[string][]float64, len(t.cols)), nulls: make(map[string][]bool, len(t.nulls))}
	for name, col := range t.cols {
		out.cols[name] = col[lo:hi:hi]
	}
	for name, mask := range t.nulls {
		out.nulls[name] = mask[lo:hi:hi]
	}
	return out
}

// WithAliases returns a view in which every key of aliases reads the column
// it maps to. Shape variations use it to swap shifted columns in place of
// nominal ones.
func (t *Table) WithAliases(aliases map[string]string) (*Table, error) {
	out := &Table{n: t.n, names: slices.Clone(t.names), cols: make(map[string][]float64, len(t.cols)), nulls: make(map[string][]bool, len(t.nulls))}
	for name, col := range t.cols {
		out.cols[name] = col
	}
	for name, mask := range t.nulls {
		out.nulls[name] = mask
	}
	for _, name := range sortedNames(aliases) {
		col, err := t.Column(aliases[name])
		if err != nil {
			return nil, fmt.Errorf("alias %q: %w", name, err)
		}
		if _, ok := out.cols[name]; !ok {
			out.names = append(out.names, name)
		}
		out.cols[name] = col
		if mask, ok := t.nulls[aliases[name]]; ok {
			out.nulls[name] = mask
		} else {
			delete(out.nulls, name)
		}
	}
	return out, nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
