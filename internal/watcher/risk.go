package watcher

import (
	"context"
	"fmt"
	"time"

	"theta_watcher/internal/lifecycle"
	"theta_watcher/internal/logger"
	"theta_watcher/internal/metrics"
	"theta_watcher/internal/models"
	"theta_watcher/internal/portfolio"
)

// fetchPrices reads one underlying price per symbol held open. It runs
// without the state lock so slow quotes never block operator actions.
func (w *Watcher) fetchPrices(ctx context.Context) map[string]float64 {
	w.mu.Lock()
	seen := map[string]bool{}
	var symbols []string
	for _, p := range w.state.Positions {
		if p.IsOpen() && !seen[p.Symbol] {
			seen[p.Symbol] = true
			symbols = append(symbols, p.Symbol)
		}
	}
	w.mu.Unlock()

	prices := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		cctx, cancel := w.timeout(ctx)
		px, err := w.source.Price(cctx, sym)
		cancel()
		if err != nil || px <= 0 {
			logger.Warnf("price %s: %v", sym, err)
			continue
		}
		prices[sym] = px
	}
	return prices
}

// advanceLocked steps every open position once. A missing quote reuses the
// last underlying mark.
func (w *Watcher) advanceLocked(prices map[string]float64) {
	for i := range w.state.Positions {
		p := &w.state.Positions[i]
		if p.Closed {
			continue
		}
		u, ok := prices[p.Symbol]
		if !ok {
			u = p.UnderlyingMark
			if u <= 0 {
				u = p.Strike
			}
		}
		w.stepOne(p, u)
	}
}

func (w *Watcher) stepOne(p *models.Position, underlying float64) {
	defer func() {
		if r := recover(); r != nil {
			w.logLocked(models.LevelError, fmt.Sprintf("Tick skipped %s: %v", p.Symbol, r), false)
		}
	}()
	w.simulator.Step(p, underlying)
}

// applyCloseRulesLocked runs the paper close engine and records whatever
// it did.
func (w *Watcher) applyCloseRulesLocked(now time.Time) {
	actions := w.engine.Run(w.state.Positions, w.settings.CloseRules(), now)
	for _, a := range actions {
		level := models.LevelSuccess
		if a.Kind == lifecycle.ActionFailed {
			level = models.LevelError
		}
		w.logLocked(level, a.Message, true)
		metrics.AutoActions.WithLabelValues(string(a.Kind)).Inc()
	}
}

// refreshLocked recomputes the risk cache and appends to the equity and
// efficiency histories.
func (w *Watcher) refreshLocked(now time.Time) {
	bal := w.config.Engine.StartingBalance
	w.state.Risk = portfolio.Risk(w.state.Positions, bal)
	perf := portfolio.Performance(w.state.Positions, bal, now)

	w.state.EquityHistory = append(w.state.EquityHistory, models.EquityPoint{
		Time:  now,
		Value: models.Round(perf.Equity, 2),
	})
	if n := len(w.state.EquityHistory); n > equityHistoryMax {
		w.state.EquityHistory = append([]models.EquityPoint(nil), w.state.EquityHistory[n-equityHistoryMax:]...)
	}

	if eff, ok := portfolio.MeanEfficiency(w.state.Positions); ok {
		w.state.EfficiencyHistory = append(w.state.EfficiencyHistory, models.Round(eff, 2))
		if n := len(w.state.EfficiencyHistory); n > efficiencyHistoryMax {
			w.state.EfficiencyHistory = append([]float64(nil), w.state.EfficiencyHistory[n-efficiencyHistoryMax:]...)
		}
	}

	metrics.RecordPortfolio(w.state.Risk.OpenTrades, perf.Equity, w.state.Risk.CollateralPct)
}
