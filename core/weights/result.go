package weights

import "fmt"

// Result is the output of a single contributor evaluation.
// It is either a SimpleResult or a MultiResult. Results are treated as
// immutable by the engine: containers never write into their slices.
type Result interface {
	// NominalValues returns the per-event nominal weight.
	NominalValues() []float64
	isResult()
}

// SimpleResult carries a nominal weight and an optional single up/down pair.
type SimpleResult struct {
	Nominal []float64
	Up      []float64
	Down    []float64
}

// MultiResult carries a nominal weight and one up/down pair per variation label.
type MultiResult struct {
	Nominal []float64
	Labels  []string
	Up      [][]float64
	Down    [][]float64
}

func (SimpleResult) isResult() {}
func (MultiResult) isResult()  {}

// NominalValues implements Result.
func (r SimpleResult) NominalValues() []float64 { return r.Nominal }

// NominalValues implements Result.
func (r MultiResult) NominalValues() []float64 { return r.Nominal }

// HasVariations reports whether any up or down array is present.
func (r SimpleResult) HasVariations() bool {
	return r.Up != nil || r.Down != nil
}

// Simple builds a result without variations.
func Simple(nominal []float64) Result {
	return SimpleResult{Nominal: nominal}
}

// SimpleVaried builds a result with a single up/down variation.
func SimpleVaried(nominal, up, down []float64) Result {
	return SimpleResult{Nominal: nominal, Up: up, Down: down}
}

// Multi builds a result with one up/down pair per label.
func Multi(nominal []float64, labels []string, up, down [][]float64) Result {
	return MultiResult{Nominal: nominal, Labels: labels, Up: up, Down: down}
}

// Ones returns a slice of n ones.
func Ones(n int) []float64 {
	return Constant(n, 1.0)
}

// Constant returns a slice of n copies of v.
func Constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// checkShape verifies that every array in the result has the expected length.
func checkShape(name string, r Result, size int) error {
	check := func(what string, arr []float64) error {
		if arr != nil && len(arr) != size {
			return fmt.Errorf("%w: contributor %q returned %s of length %d, expected %d", ErrShapeMismatch, name, what, len(arr), size)
		}
		return nil
	}

	switch res := r.(type) {
	case SimpleResult:
		if res.Nominal == nil {
			return fmt.Errorf("%w: contributor %q returned no nominal weight", ErrShapeMismatch, name)
		}
		if err := check("nominal", res.Nominal); err != nil {
			return err
		}
		if err := check("up", res.Up); err != nil {
			return err
		}
		if err := check("down", res.Down); err != nil {
			return err
		}
	case MultiResult:
		if res.Nominal == nil {
			return fmt.Errorf("%w: contributor %q returned no nominal weight", ErrShapeMismatch, name)
		}
		if err := check("nominal", res.Nominal); err != nil {
			return err
		}
		if len(res.Up) != len(res.Labels) || len(res.Down) != len(res.Labels) {
			return fmt.Errorf("%w: contributor %q returned %d labels with %d up and %d down arrays",
				ErrShapeMismatch, name, len(res.Labels), len(res.Up), len(res.Down))
		}
		for i, label := range res.Labels {
			if err := check(label+" up", res.Up[i]); err != nil {
				return err
			}
			if err := check(label+" down", res.Down[i]); err != nil {
				return err
			}
			if res.Up[i] == nil || res.Down[i] == nil {
				return fmt.Errorf("%w: contributor %q variation %q is missing up or down", ErrShapeMismatch, name, label)
			}
		}
	default:
		return fmt.Errorf("%w: contributor %q returned nil result", ErrShapeMismatch, name)
	}
	return nil
}
