package lifecycle

import "theta_watcher/internal/models"

// Params carries the knobs normalization needs.
type Params struct {
	BaseTarget    float64
	EfficiencyCap float64
	Exit          ExitConfig
}

// DefaultParams returns base target 55, efficiency cap 2.0 and the stock
// exit thresholds.
func DefaultParams() Params {
	return Params{
		BaseTarget:    DefaultBaseTarget,
		EfficiencyCap: DefaultEfficiencyCap,
		Exit:          DefaultExitConfig(),
	}
}

// Normalize fills defaults a freshly created or legacy position may lack
// and refreshes the cached efficiency and exit state. Running it on an
// already normalized position changes nothing.
func Normalize(p *models.Position, prm Params) {
	if p.Strategy == "" {
		p.Strategy = models.StrategyIncome
	}
	if p.InitialDTE == 0 {
		p.InitialDTE = p.DTE
	}
	if p.IVRank == nil {
		p.IVRank = models.Float(models.NeutralIVRank)
	}
	if p.InitialCredit == 0 {
		p.InitialCredit = p.Credit
	}
	if p.CurrentMark == 0 {
		p.CurrentMark = p.InitialCredit
	}

	if p.IsIncome() {
		if p.TargetCapture == nil {
			p.TargetCapture = models.Float(AdaptiveTarget(p.IV(), p.DTE, prm.BaseTarget))
		} else if t := clampTarget(*p.TargetCapture); t != *p.TargetCapture {
			p.TargetCapture = models.Float(t)
		}
	}

	p.CaptureEfficiency = CaptureEfficiency(*p, prm.EfficiencyCap)
	p.ExitState = Classify(*p, prm.Exit)
}

// NormalizeAll normalizes every position in place.
func NormalizeAll(positions []models.Position, prm Params) {
	for i := range positions {
		Normalize(&positions[i], prm)
	}
}
