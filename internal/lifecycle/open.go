package lifecycle

import (
	"fmt"
	"time"

	"theta_watcher/internal/models"
)

// Open turns an income candidate into a normalized position. ok is false
// for any other strategy.
func Open(c models.Candidate, prm Params, now time.Time) (models.Position, bool) {
	if c.Strategy != "" && c.Strategy != models.StrategyIncome {
		return models.Position{}, false
	}

	dte := float64(c.DTE)
	target := AdaptiveTarget(c.IVRank, dte, prm.BaseTarget)
	p := models.Position{
		ID:             c.ID,
		Opened:         now,
		Symbol:         c.Symbol,
		Strategy:       models.StrategyIncome,
		Strike:         c.Strike,
		DTE:            dte,
		InitialDTE:     dte,
		Delta:          c.Delta,
		IVRank:         models.Float(c.IVRank),
		InitialCredit:  c.Credit,
		CurrentMark:    c.Credit,
		UnderlyingMark: c.Price,
		TargetCapture:  models.Float(target),
		Why:            fmt.Sprintf("Short put. Goal %.0f%%. Δ%.2f.", target, c.Delta),
		Expiration:     c.Expiration,
		OptionSymbol:   c.OptionSymbol,
	}
	Normalize(&p, prm)
	return p, true
}
