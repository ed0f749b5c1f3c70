// Package lifecycle moves an income position through its life: opening it
// from a candidate, normalizing legacy fields, advancing it on each tick,
// classifying how urgently it should exit and closing it.
package lifecycle

import "math"

// Target bounds and the base capture target.
const (
	TargetFloor       = 35.0
	TargetCeiling     = 75.0
	DefaultBaseTarget = 55.0
)

// AdaptiveTarget shifts the base profit-capture target for IV rank and
// time left: rich premium and short-dated trades aim lower.
func AdaptiveTarget(ivRank, dte, base float64) float64 {
	target := base

	switch {
	case ivRank >= 70:
		target -= 5
	case ivRank < 40:
		target += 5
	}

	switch {
	case dte <= 5:
		target -= 5
	case dte > 12:
		target += 2
	}

	return clampTarget(target)
}

func clampTarget(t float64) float64 {
	return math.Max(TargetFloor, math.Min(TargetCeiling, t))
}
