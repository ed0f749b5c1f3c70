package portfolio

import (
	"math"
	"sort"
	"time"

	"theta_watcher/internal/models"
)

// PerformanceSnapshot is the account-level view shown on the health panel.
type PerformanceSnapshot struct {
	Equity        float64 `json:"equity"`
	EquityPct     float64 `json:"equity_pct"`
	RealizedToday float64 `json:"realized_today"`
	CapturePct    float64 `json:"cap_pct"`  // dollar-weighted capture over every income position ever opened
	AvgCapture    float64 `json:"avg_cap"`  // mean capture over open income positions
	AvgTimeUsed   float64 `json:"avg_time"` // mean time used over open income positions
}

// Performance computes equity and capture figures. realized today counts
// positions whose close timestamp falls on now's calendar date.
func Performance(positions []models.Position, startingBalance float64, now time.Time) PerformanceSnapshot {
	var (
		snap            PerformanceSnapshot
		realized        float64
		unrealized      float64
		capturedDollars float64
		sold            float64
		openCount       int
	)

	for _, p := range positions {
		realized += p.RealizedPnL
		if p.ClosedAt != nil && sameDay(*p.ClosedAt, now) {
			snap.RealizedToday += p.RealizedPnL
		}
		if !p.IsIncome() {
			continue
		}
		capturedDollars += p.PremCaptured / 100 * p.InitialCredit
		sold += p.InitialCredit
		if p.Closed {
			continue
		}
		unrealized += p.UnrealizedPnL
		snap.AvgCapture += p.PremCaptured
		snap.AvgTimeUsed += p.TimeUsedPct
		openCount++
	}

	snap.Equity = startingBalance + realized + unrealized
	if startingBalance != 0 {
		snap.EquityPct = (snap.Equity/startingBalance - 1) * 100
	}
	if sold != 0 {
		snap.CapturePct = capturedDollars / sold * 100
	}
	if openCount > 0 {
		snap.AvgCapture /= float64(openCount)
		snap.AvgTimeUsed /= float64(openCount)
	}
	return snap
}

// TotalRealized sums realized P&L across every position.
func TotalRealized(positions []models.Position) float64 {
	var total float64
	for _, p := range positions {
		total += p.RealizedPnL
	}
	return total
}

// AvgDailyRealized spreads total realized P&L over the distinct days on
// which positions were closed. With no closes it returns realizedToday.
func AvgDailyRealized(positions []models.Position, realizedToday float64) float64 {
	days := map[string]struct{}{}
	for _, p := range positions {
		if p.ClosedAt != nil {
			days[p.ClosedAt.Format("2006-01-02")] = struct{}{}
		}
	}
	if len(days) == 0 {
		return realizedToday
	}
	return TotalRealized(positions) / float64(len(days))
}

// Pacing compares average capture with average time used.
func Pacing(avgCapture, avgTimeUsed, tolerance float64) string {
	diff := avgCapture - avgTimeUsed
	switch {
	case diff > tolerance:
		return "Ahead"
	case diff < -tolerance:
		return "Behind"
	default:
		return "On Pace"
	}
}

// AvgWin is the assumed dollar win per trade when estimating trades left
// to hit the daily goal.
const AvgWin = 25.0

// GoalProgress tracks realized P&L against the daily profit goal.
type GoalProgress struct {
	Goal         float64 `json:"goal"`
	Achieved     float64 `json:"achieved"`
	Pct          float64 `json:"pct"`
	Remaining    float64 `json:"remaining"`
	TradesNeeded int     `json:"trades_needed"`
}

// DailyGoal reports progress toward goal.
func DailyGoal(realizedToday, goal float64) GoalProgress {
	g := GoalProgress{Goal: goal, Achieved: realizedToday}
	if goal != 0 {
		g.Pct = realizedToday / goal * 100
	}
	g.Remaining = math.Max(0, goal-realizedToday)
	g.TradesNeeded = int(math.Ceil(g.Remaining / AvgWin))
	return g
}

// MeanEfficiency averages the cached capture efficiency of open income
// positions that have one.
func MeanEfficiency(positions []models.Position) (float64, bool) {
	var sum float64
	var n int
	for _, p := range positions {
		if p.Closed || p.CaptureEfficiency == nil {
			continue
		}
		sum += *p.CaptureEfficiency
		n++
	}
	if n == 0 {
		return 0, false
	}
	return models.Round(sum/float64(n), 2), true
}

// EfficiencyLabel describes the latest efficiency reading.
func EfficiencyLabel(eff float64) string {
	switch {
	case eff > 1.1:
		return "Faster"
	case eff < 0.9:
		return "Slow"
	default:
		return "On Schedule"
	}
}

// HotSymbol is a watchlist symbol whose last IV rank crossed the alert threshold.
type HotSymbol struct {
	Symbol string  `json:"symbol"`
	IVR    float64 `json:"ivr"`
}

// HotIVR lists up to limit symbols at or above threshold, highest first.
func HotIVR(last map[string]models.IVRSample, threshold float64, limit int) []HotSymbol {
	var hot []HotSymbol
	for sym, s := range last {
		if s.IVR != nil && *s.IVR >= threshold {
			hot = append(hot, HotSymbol{Symbol: sym, IVR: *s.IVR})
		}
	}
	sort.Slice(hot, func(i, j int) bool {
		if hot[i].IVR != hot[j].IVR {
			return hot[i].IVR > hot[j].IVR
		}
		return hot[i].Symbol < hot[j].Symbol
	})
	if limit > 0 && len(hot) > limit {
		hot = hot[:limit]
	}
	return hot
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(b.Location()).Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
