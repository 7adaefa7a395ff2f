package schema

import (
	"math"
	"strings"
)

// EnrichedYield adds presentation data to a Yield.
type EnrichedYield struct {
	Yield
	Error      float64 `json:"error" yaml:"error"`             // Statistical uncertainty, sqrt(sumw2)
	RelDelta   float64 `json:"rel_delta" yaml:"rel_delta"`     // Relative shift with respect to the nominal yield
	HasNominal bool    `json:"has_nominal" yaml:"has_nominal"` // Whether RelDelta is defined
}

// EnrichYields computes statistical errors and the relative shift of every
// varied yield with respect to the nominal yield of the same cell.
func EnrichYields(yields []Yield) []EnrichedYield {
	nominal := make(map[Cell]float64, len(yields))
	for _, y := range yields {
		if y.Variation == NominalVariation {
			nominal[y.Cell()] = y.SumW
		}
	}

	out := make([]EnrichedYield, len(yields))
	for i, y := range yields {
		e := EnrichedYield{Yield: y, Error: math.Sqrt(y.SumW2)}
		if nom, ok := nominal[y.Cell()]; ok && nom != 0 {
			e.RelDelta = (y.SumW - nom) / nom
			e.HasNominal = true
		}
		out[i] = e
	}
	return out
}

// CategoryLabel returns the display name of a category.
func CategoryLabel(category string) string {
	if category == "" {
		return InclusiveLabel
	}
	return category
}

// SubsampleLabel returns the display name of a subsample.
func SubsampleLabel(subsample string) string {
	if subsample == "" {
		return OverallLabel
	}
	return subsample
}

// IsUpVariation reports whether a variation name denotes an upward shift.
func IsUpVariation(variation string) bool {
	return strings.HasSuffix(variation, "Up")
}

// IsDownVariation reports whether a variation name denotes a downward shift.
func IsDownVariation(variation string) bool {
	return strings.HasSuffix(variation, "Down")
}
