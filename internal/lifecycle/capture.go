package lifecycle

import (
	"math"

	"theta_watcher/internal/models"
)

// DefaultEfficiencyCap bounds CaptureEfficiency.
const DefaultEfficiencyCap = 2.0

// CapturedPct is the share of the initial credit already kept, in percent.
// Floored at 0, not capped at 100.
func CapturedPct(initialCredit, mark float64) float64 {
	if initialCredit <= 0 {
		return 0
	}
	return models.Round(math.Max(0, (initialCredit-mark)/initialCredit*100), 2)
}

// CaptureEfficiency compares capture with elapsed lifetime. Above 1 means
// premium is coming in faster than time is passing. nil when undefined.
func CaptureEfficiency(p models.Position, limit float64) *float64 {
	if !p.IsIncome() || p.Closed {
		return nil
	}
	initial := p.InitialDTE
	if initial == 0 {
		initial = p.DTE
	}
	if initial == 0 {
		return nil
	}
	used := (initial - p.DTE) / initial
	if used <= 0 {
		return nil
	}
	eff := (p.PremCaptured / 100) / used
	return models.Float(models.Round(math.Min(eff, limit), 2))
}
