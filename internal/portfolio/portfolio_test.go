package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theta_watcher/internal/models"
)

var now = time.Date(2026, 10, 15, 15, 0, 0, 0, time.UTC)

func income(sym string, strike, dte float64) models.Position {
	return models.Position{Symbol: sym, Strategy: models.StrategyIncome, Strike: strike, DTE: dte}
}

func TestRisk(t *testing.T) {
	closed := income("AAPL", 200, 10)
	closed.Closed = true

	positions := []models.Position{
		income("AAPL", 100, 10),
		income("AAPL", 50, 2),
		income("SPY", 100, 1),
		closed,
	}

	snap := Risk(positions, 50000)
	assert.InDelta(t, 0.5, snap.CollateralPct, 1e-9)
	assert.InDelta(t, 2.0/3.0, snap.MaxSymbolFraction, 1e-9)
	assert.Equal(t, 2, snap.NearExpiry)
	assert.Equal(t, 3, snap.OpenTrades)
}

func TestRisk_Empty(t *testing.T) {
	snap := Risk(nil, 5000)
	assert.Equal(t, models.RiskSnapshot{}, snap)

	snap = Risk([]models.Position{income("X", 10, 5)}, 0)
	assert.Equal(t, 0.0, snap.CollateralPct)
	assert.Equal(t, 1.0, snap.MaxSymbolFraction)
}

func TestPerformance(t *testing.T) {
	today := now.Add(-2 * time.Hour)
	yesterday := now.Add(-26 * time.Hour)

	closedToday := income("AAPL", 100, 0)
	closedToday.Closed = true
	closedToday.ClosedAt = &today
	closedToday.InitialCredit = 2.0
	closedToday.PremCaptured = 60
	closedToday.RealizedPnL = 120

	closedBefore := income("MSFT", 100, 0)
	closedBefore.Closed = true
	closedBefore.ClosedAt = &yesterday
	closedBefore.InitialCredit = 1.0
	closedBefore.PremCaptured = 30
	closedBefore.RealizedPnL = 30

	open := income("SPY", 100, 5)
	open.InitialCredit = 1.0
	open.PremCaptured = 40
	open.TimeUsedPct = 20
	open.UnrealizedPnL = 40
	open.RealizedPnL = 10

	positions := []models.Position{closedToday, closedBefore, open}
	snap := Performance(positions, 5000, now)

	assert.InDelta(t, 5200, snap.Equity, 1e-9)
	assert.InDelta(t, 4.0, snap.EquityPct, 1e-9)
	assert.InDelta(t, 120, snap.RealizedToday, 1e-9)
	// (1.2 + 0.3 + 0.4) / 4.0
	assert.InDelta(t, 47.5, snap.CapturePct, 1e-9)
	assert.InDelta(t, 40, snap.AvgCapture, 1e-9)
	assert.InDelta(t, 20, snap.AvgTimeUsed, 1e-9)

	assert.InDelta(t, 160, TotalRealized(positions), 1e-9)
	assert.InDelta(t, 80, AvgDailyRealized(positions, snap.RealizedToday), 1e-9)
	assert.Equal(t, 12.5, AvgDailyRealized(nil, 12.5))
}

func TestPerformance_NoPositions(t *testing.T) {
	snap := Performance(nil, 5000, now)
	assert.Equal(t, PerformanceSnapshot{Equity: 5000}, snap)
}

func TestPacing(t *testing.T) {
	assert.Equal(t, "Ahead", Pacing(60, 50, 5))
	assert.Equal(t, "Behind", Pacing(40, 50, 5))
	assert.Equal(t, "On Pace", Pacing(55, 50, 5))
	assert.Equal(t, "On Pace", Pacing(45, 50, 5))
}

func TestDailyGoal(t *testing.T) {
	g := DailyGoal(40, 100)
	assert.Equal(t, 40.0, g.Pct)
	assert.Equal(t, 60.0, g.Remaining)
	assert.Equal(t, 3, g.TradesNeeded)

	g = DailyGoal(150, 100)
	assert.Equal(t, 0.0, g.Remaining)
	assert.Equal(t, 0, g.TradesNeeded)

	g = DailyGoal(10, 0)
	assert.Equal(t, 0.0, g.Pct)
}

func TestMeanEfficiency(t *testing.T) {
	a := income("A", 1, 1)
	a.CaptureEfficiency = models.Float(1.5)
	b := income("B", 1, 1)
	b.CaptureEfficiency = models.Float(0.5)
	c := income("C", 1, 1)

	eff, ok := MeanEfficiency([]models.Position{a, b, c})
	require.True(t, ok)
	assert.Equal(t, 1.0, eff)
	assert.Equal(t, "On Schedule", EfficiencyLabel(eff))
	assert.Equal(t, "Faster", EfficiencyLabel(1.2))
	assert.Equal(t, "Slow", EfficiencyLabel(0.5))

	_, ok = MeanEfficiency([]models.Position{c})
	assert.False(t, ok)
}

func TestHotIVR(t *testing.T) {
	last := map[string]models.IVRSample{
		"AAPL": {IVR: models.Float(55)},
		"TSLA": {IVR: models.Float(81)},
		"MSFT": {IVR: models.Float(50)},
		"NVDA": {IVR: models.Float(62)},
		"SPY":  {IVR: nil},
		"QQQ":  {IVR: models.Float(20)},
	}

	hot := HotIVR(last, 50, 3)
	require.Len(t, hot, 3)
	assert.Equal(t, []HotSymbol{{"TSLA", 81}, {"NVDA", 62}, {"AAPL", 55}}, hot)
	assert.Len(t, HotIVR(last, 50, 0), 4)
}
