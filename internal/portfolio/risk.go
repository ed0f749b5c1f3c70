// Package portfolio derives portfolio-wide risk and performance figures.
// Everything here is a pure projection of the position list.
package portfolio

import (
	"theta_watcher/internal/models"
)

// NearExpiryDTE is the DTE at or below which a position counts as near expiry.
const NearExpiryDTE = 2.0

// Risk summarizes collateral, concentration and expiry pressure over open
// positions. Collateral is strike x 100 per income position as a fraction
// of the starting balance.
func Risk(positions []models.Position, startingBalance float64) models.RiskSnapshot {
	var (
		collateral float64
		open       int
		near       int
		bySymbol   = map[string]int{}
	)

	for _, p := range positions {
		if p.Closed {
			continue
		}
		open++
		if p.IsIncome() {
			collateral += p.Strike * 100
		}
		bySymbol[p.Symbol]++
		if p.DTE <= NearExpiryDTE {
			near++
		}
	}

	snap := models.RiskSnapshot{NearExpiry: near, OpenTrades: open}
	if startingBalance != 0 {
		snap.CollateralPct = collateral / startingBalance
	}
	if open > 0 {
		most := 0
		for _, n := range bySymbol {
			if n > most {
				most = n
			}
		}
		snap.MaxSymbolFraction = float64(most) / float64(open)
	}
	return snap
}
