package lifecycle

import (
	"math"

	"theta_watcher/internal/models"
)

// ExitConfig holds the classifier thresholds. Capture values are percent,
// EarlyLockMaxTimeUsed is a fraction of the position's lifetime.
type ExitConfig struct {
	EarlyLockMinCapture  float64
	EarlyLockMaxTimeUsed float64
	UrgentMaxDTE         float64
	UrgentCaptureUnder   float64
	RollMaxDTE           float64
	RollMinCapture       float64
}

// DefaultExitConfig returns the stock thresholds.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		EarlyLockMinCapture:  40,
		EarlyLockMaxTimeUsed: 0.50,
		UrgentMaxDTE:         2,
		UrgentCaptureUnder:   70,
		RollMaxDTE:           5,
		RollMinCapture:       55,
	}
}

// Classify labels an open income position from its current metrics.
// Rules are checked in order and the first match wins; closed and
// non-income positions get ExitNone. It keeps no history, so the label can
// move back and forth between ticks.
func Classify(p models.Position, cfg ExitConfig) models.ExitState {
	if !p.IsIncome() || p.Closed {
		return models.ExitNone
	}

	capture := p.PremCaptured
	target := p.Target(DefaultBaseTarget)
	initial := math.Max(1, p.InitialDTE)
	used := (initial - p.DTE) / initial

	switch {
	case capture >= target:
		return models.ExitGoal
	case capture >= cfg.EarlyLockMinCapture && used <= cfg.EarlyLockMaxTimeUsed:
		return models.ExitEarlyLock
	case p.DTE <= cfg.UrgentMaxDTE && capture < cfg.UrgentCaptureUnder:
		return models.ExitUrgent
	case p.DTE <= cfg.RollMaxDTE && capture >= cfg.RollMinCapture:
		return models.ExitRollWindow
	default:
		return models.ExitMonitor
	}
}
