package lifecycle

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theta_watcher/internal/models"
)

var now = time.Date(2026, 10, 15, 15, 0, 0, 0, time.UTC)

func openPosition(t *testing.T, ivr float64, dte int, credit float64) models.Position {
	t.Helper()
	p, ok := Open(models.Candidate{
		ID:       "t1",
		Strategy: models.StrategyIncome,
		Symbol:   "AAPL",
		Price:    190,
		Strike:   180,
		DTE:      dte,
		Delta:    0.22,
		IVRank:   ivr,
		Credit:   credit,
	}, DefaultParams(), now)
	require.True(t, ok)
	return p
}

func TestCapturedPct(t *testing.T) {
	assert.Equal(t, 60.0, CapturedPct(2.00, 0.80))
	assert.Equal(t, 0.0, CapturedPct(2.00, 2.40), "adverse moves floor at zero")
	assert.Equal(t, 0.0, CapturedPct(0, 0.5))
}

func TestAdaptiveTarget(t *testing.T) {
	tests := []struct {
		name     string
		ivr, dte float64
		want     float64
	}{
		{"high iv neutral dte", 75, 10, 50},
		{"low iv short dte", 30, 3, 55},
		{"neutral", 50, 10, 55},
		{"long dated low iv", 20, 30, 62},
		{"boundary iv 70", 70, 5, 45},
		{"boundary iv 40", 40, 12, 55},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AdaptiveTarget(tt.ivr, tt.dte, DefaultBaseTarget))
		})
	}
}

func TestAdaptiveTarget_StaysInBounds(t *testing.T) {
	for _, base := range []float64{0, 20, 55, 90, 200} {
		for ivr := 0.0; ivr <= 100; ivr += 5 {
			for dte := 0.0; dte <= 45; dte += 0.5 {
				got := AdaptiveTarget(ivr, dte, base)
				require.GreaterOrEqual(t, got, TargetFloor)
				require.LessOrEqual(t, got, TargetCeiling)
			}
		}
	}
}

func TestClassify_Precedence(t *testing.T) {
	cfg := DefaultExitConfig()
	base := models.Position{
		Strategy:      models.StrategyIncome,
		InitialDTE:    10,
		TargetCapture: models.Float(55),
	}

	tests := []struct {
		name    string
		capture float64
		dte     float64
		want    models.ExitState
	}{
		{"goal beats everything", 55, 1, models.ExitGoal},
		{"early lock", 45, 8, models.ExitEarlyLock},
		{"urgent", 20, 2, models.ExitUrgent},
		{"below roll capture", 54.9, 4, models.ExitMonitor},
		{"monitor", 10, 8, models.ExitMonitor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			p.PremCaptured = tt.capture
			p.DTE = tt.dte
			assert.Equal(t, tt.want, Classify(p, cfg))
		})
	}

	// Roll window needs capture >= 55 which is also the target here; lower
	// the target out of the way to reach it.
	p := base
	p.TargetCapture = models.Float(75)
	p.PremCaptured = 60
	p.DTE = 4
	assert.Equal(t, models.ExitRollWindow, Classify(p, cfg))

	closed := base
	closed.Closed = true
	assert.Equal(t, models.ExitNone, Classify(closed, cfg))
}

func TestCaptureEfficiency(t *testing.T) {
	p := models.Position{Strategy: models.StrategyIncome, InitialDTE: 10, DTE: 10, PremCaptured: 30}
	assert.Nil(t, CaptureEfficiency(p, 2), "no time used yet")

	p.DTE = 5
	eff := CaptureEfficiency(p, 2)
	require.NotNil(t, eff)
	assert.Equal(t, 0.6, *eff)

	p.PremCaptured = 90
	p.DTE = 9
	eff = CaptureEfficiency(p, 2)
	require.NotNil(t, eff)
	assert.Equal(t, 2.0, *eff)

	p.Closed = true
	assert.Nil(t, CaptureEfficiency(p, 2))
}

func TestNormalize_LegacyDefaultsAndIdempotence(t *testing.T) {
	legacy := models.Position{ID: "old", Symbol: "SPY", Strike: 500, DTE: 3, Credit: 1.5}

	Normalize(&legacy, DefaultParams())
	assert.Equal(t, models.StrategyIncome, legacy.Strategy)
	assert.Equal(t, 3.0, legacy.InitialDTE)
	assert.Equal(t, 50.0, legacy.IV())
	assert.Equal(t, 1.5, legacy.InitialCredit)
	assert.Equal(t, 1.5, legacy.CurrentMark)
	require.NotNil(t, legacy.TargetCapture)
	assert.Equal(t, 50.0, *legacy.TargetCapture)
	assert.Equal(t, models.ExitMonitor, legacy.ExitState)

	once := legacy
	Normalize(&legacy, DefaultParams())
	assert.Equal(t, once, legacy)
}

func TestNormalize_ClampsStoredTarget(t *testing.T) {
	p := models.Position{Strategy: models.StrategyIncome, DTE: 10, TargetCapture: models.Float(90)}
	Normalize(&p, DefaultParams())
	assert.Equal(t, TargetCeiling, *p.TargetCapture)
}

func TestSimulator_DTEStaysInBounds(t *testing.T) {
	sim := NewSimulator(42)
	p := openPosition(t, 50, 7, 1.20)

	for i := 0; i < 100; i++ {
		prev := p.DTE
		sim.Step(&p, 190)
		require.GreaterOrEqual(t, p.DTE, 0.0)
		require.LessOrEqual(t, p.DTE, p.InitialDTE)
		require.LessOrEqual(t, p.DTE, prev)
		require.GreaterOrEqual(t, p.UnderlyingMark, 1.0)
		require.GreaterOrEqual(t, p.TimeUsedPct, 0.0)
		require.LessOrEqual(t, p.TimeUsedPct, 100.0)
	}
	assert.Equal(t, 0.0, p.DTE)
	assert.Equal(t, 7.0, p.InitialDTE)
	assert.Equal(t, 100.0, p.TimeUsedPct)
}

func TestSimulator_MarkDecaysTowardTheory(t *testing.T) {
	sim := NewSimulator(1)
	p := openPosition(t, 50, 10, 2.00)

	sim.Step(&p, 100)

	// one step: dte 9.8, used 0.02
	assert.Equal(t, 9.8, p.DTE)
	assert.Equal(t, 2.0, p.TimeUsedPct)
	theo := 2.0 * math.Pow(1-0.55*0.02, 1.05)
	want := models.Round(0.6*2.0+0.4*theo*(1-0.22*0.05), 2)
	assert.Equal(t, want, p.CurrentMark)
	assert.Equal(t, CapturedPct(2.0, 0.6*2.0+0.4*theo*(1-0.22*0.05)), p.PremCaptured)
	assert.Greater(t, p.UnrealizedPnL, 0.0)
}

func TestSimulator_SkipsClosedAndZeroCredit(t *testing.T) {
	sim := NewSimulator(7)

	closed := openPosition(t, 50, 10, 1.0)
	closed.Closed = true
	before := closed
	sim.Step(&closed, 100)
	assert.Equal(t, before, closed)

	free := openPosition(t, 50, 10, 0)
	sim.Step(&free, 100)
	assert.Equal(t, 0.0, free.PremCaptured)
	assert.Equal(t, 9.8, free.DTE)
}

func TestCloseEngine_TargetBeatsEarlyLock(t *testing.T) {
	p := openPosition(t, 50, 10, 2.0)
	p.PremCaptured = 65
	p.TimeUsedPct = 55
	p.TargetCapture = models.Float(55)
	p.UnrealizedPnL = 130
	positions := []models.Position{p}

	actions := CloseEngine{Params: DefaultParams()}.Run(positions, Settings{AutoClose: true, PartialAtPct: 50, EarlyLockDiffPct: 5}, now)

	require.Len(t, actions, 1)
	assert.Equal(t, ActionTarget, actions[0].Kind)
	assert.Equal(t, "Auto-closed (target): AAPL at 65% (target 55%)", actions[0].Message)
	assert.True(t, positions[0].Closed)
	assert.Equal(t, 130.0, positions[0].RealizedPnL)
	assert.Equal(t, 0.0, positions[0].UnrealizedPnL)
	assert.Equal(t, models.ExitNone, positions[0].ExitState)
}

func TestCloseEngine_EarlyLockAndPartial(t *testing.T) {
	lock := openPosition(t, 50, 10, 2.0)
	lock.ID = "lock"
	lock.PremCaptured = 40
	lock.TimeUsedPct = 30

	partial := openPosition(t, 50, 10, 2.0)
	partial.ID = "partial"
	partial.PremCaptured = 50
	partial.TimeUsedPct = 48
	partial.UnrealizedPnL = 100

	positions := []models.Position{lock, partial}
	engine := CloseEngine{Params: DefaultParams()}
	settings := Settings{AutoClose: true, PartialAtPct: 50, EarlyLockDiffPct: 5}

	actions := engine.Run(positions, settings, now)
	require.Len(t, actions, 2)
	assert.Equal(t, ActionEarlyLock, actions[0].Kind)
	assert.Equal(t, "Auto-closed (early-lock): AAPL — Cap 40% vs Time 30%", actions[0].Message)
	assert.Equal(t, ActionPartial, actions[1].Kind)
	assert.Equal(t, "Auto partial: AAPL at 50% (took half)", actions[1].Message)

	assert.True(t, positions[0].Closed)
	assert.False(t, positions[1].Closed)
	assert.True(t, positions[1].PartialClosed)
	assert.Equal(t, 50.0, positions[1].RealizedPnL)
	assert.Equal(t, 50.0, positions[1].UnrealizedPnL)

	// A second pass must not take another partial.
	actions = engine.Run(positions, settings, now)
	assert.Empty(t, actions)
	assert.Equal(t, 50.0, positions[1].UnrealizedPnL)
}

func TestCloseEngine_FailureIsolatedToOnePosition(t *testing.T) {
	orig := closeFull
	t.Cleanup(func() { closeFull = orig })
	closeFull = func(p *models.Position, at time.Time) bool {
		if p.ID == "bad" {
			panic("mark feed returned garbage")
		}
		return orig(p, at)
	}

	bad := openPosition(t, 50, 10, 2.0)
	bad.ID = "bad"
	bad.PremCaptured = 70
	good := openPosition(t, 50, 10, 2.0)
	good.ID = "good"
	good.Symbol = "SPY"
	good.PremCaptured = 70
	good.UnrealizedPnL = 140

	positions := []models.Position{bad, good}
	actions := CloseEngine{Params: DefaultParams()}.Run(positions, Settings{AutoClose: true, PartialAtPct: 50, EarlyLockDiffPct: 5}, now)

	require.Len(t, actions, 2)
	assert.Equal(t, ActionFailed, actions[0].Kind)
	assert.Equal(t, "bad", actions[0].PositionID)
	assert.Equal(t, "Auto-close skipped AAPL: mark feed returned garbage", actions[0].Message)
	assert.False(t, positions[0].Closed)

	assert.Equal(t, ActionTarget, actions[1].Kind)
	assert.True(t, positions[1].Closed)
	assert.Equal(t, 140.0, positions[1].RealizedPnL)
}

func TestCloseEngine_Disabled(t *testing.T) {
	p := openPosition(t, 50, 10, 2.0)
	p.PremCaptured = 99
	positions := []models.Position{p}
	assert.Empty(t, CloseEngine{Params: DefaultParams()}.Run(positions, Settings{}, now))
	assert.False(t, positions[0].Closed)
}

func TestCloseEngine_ManualHalfKeepsAutoPartialArmed(t *testing.T) {
	p := openPosition(t, 50, 10, 2.0)
	p.UnrealizedPnL = 80
	require.True(t, ClosePartial(&p))
	assert.False(t, p.PartialClosed)
	assert.Equal(t, 40.0, p.RealizedPnL)

	p.PremCaptured = 50
	p.TimeUsedPct = 48
	positions := []models.Position{p}
	actions := CloseEngine{Params: DefaultParams()}.Run(positions, Settings{AutoClose: true, PartialAtPct: 50, EarlyLockDiffPct: 5}, now)

	require.Len(t, actions, 1)
	assert.Equal(t, ActionPartial, actions[0].Kind)
	assert.True(t, positions[0].PartialClosed)
	assert.Equal(t, 60.0, positions[0].RealizedPnL)
	assert.Equal(t, 20.0, positions[0].UnrealizedPnL)
}

func TestCloseFull_IsNoOpWhenClosed(t *testing.T) {
	p := openPosition(t, 50, 10, 2.0)
	p.UnrealizedPnL = 80

	require.True(t, CloseFull(&p, now))
	closedAt := *p.ClosedAt
	snapshot := p

	assert.False(t, CloseFull(&p, now.Add(time.Hour)))
	assert.False(t, ClosePartial(&p))
	assert.Equal(t, snapshot, p)
	assert.Equal(t, closedAt, *p.ClosedAt)
}

func TestOpen_RejectsOtherStrategies(t *testing.T) {
	_, ok := Open(models.Candidate{Strategy: "covered_call"}, DefaultParams(), now)
	assert.False(t, ok)

	p := openPosition(t, 75, 10, 1.10)
	assert.Equal(t, 50.0, *p.TargetCapture)
	assert.Equal(t, "Short put. Goal 50%. Δ0.22.", p.Why)
	assert.Equal(t, models.ExitMonitor, p.ExitState)
}
