package watcher

import (
	"fmt"
	"math"
	"strings"

	"theta_watcher/internal/models"
	"theta_watcher/internal/portfolio"
)

const (
	pacingTolerance = 5.0
	nearGoalMargin  = 5.0
	hotIVRLimit     = 3
	autoLogSize     = 5
	sparklineSize   = 20
)

// Row is one open position as the trade table shows it.
type Row struct {
	ID              string           `json:"id"`
	Opened          string           `json:"opened"`
	Symbol          string           `json:"symbol"`
	Strategy        string           `json:"strategy_type"`
	Strike          float64          `json:"strike"`
	DTE             int              `json:"dte"`
	CaptureProgress string           `json:"capture_progress"`
	UnrealizedPnL   float64          `json:"unrealized_pnl"`
	ExitState       models.ExitState `json:"exit_state"`
	Why             string           `json:"why_summary"`
	PremCaptured    float64          `json:"prem_captured_pct"`
	TimeUsedPct     float64          `json:"time_used_pct"`
	OptionSymbol    string           `json:"option_symbol,omitempty"`
	BrokerOrderID   string           `json:"broker_order_id,omitempty"`
}

// Health is the account health panel.
type Health struct {
	Equity        float64 `json:"equity"`
	EquityPct     float64 `json:"equity_pct"`
	RealizedToday float64 `json:"realized_today"`
	CapturePct    float64 `json:"cap_pct"`
	OpenTrades    int     `json:"open_trades"`
	CollateralPct float64 `json:"collateral_pct"` // percent of starting balance
	Concentration float64 `json:"concentration_pct"`
	NearExpiry    int     `json:"near_expiry"`
}

// Summary is the realized P&L panel.
type Summary struct {
	TotalPnL    float64 `json:"total_pnl"`
	TotalPct    float64 `json:"total_pct"`
	TodayPnL    float64 `json:"today_pnl"`
	AvgDailyPnL float64 `json:"avg_daily_pnl"`
}

// Pacing compares average capture with average time used.
type Pacing struct {
	Status      string  `json:"status"`
	AvgCapture  float64 `json:"avg_cap"`
	AvgTimeUsed float64 `json:"avg_time"`
}

// Efficiency is the latest mean capture efficiency and its history.
type Efficiency struct {
	Latest  float64   `json:"latest"`
	Label   string    `json:"label"`
	History []float64 `json:"history"`
}

// Panels is everything the dashboard renders besides the trade table.
type Panels struct {
	Mode       string                 `json:"mode"`
	Health     Health                 `json:"health"`
	Summary    Summary                `json:"summary"`
	Pacing     Pacing                 `json:"pacing"`
	Goal       portfolio.GoalProgress `json:"goal"`
	GoalLine   string                 `json:"goal_line"`
	Efficiency Efficiency             `json:"efficiency"`
	Actions    []string               `json:"actions"`
	AutoLog    []string               `json:"auto_log"`
	Guidance   []string               `json:"guidance"`
	Equity     []models.EquityPoint   `json:"equity"`
	Toast      *models.ActionLogEntry `json:"toast,omitempty"`
	Settings   string                 `json:"settings"`
}

// Rows lists open positions in insertion order.
func (w *Watcher) Rows() []Row {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows := []Row{}
	for _, p := range w.state.OpenPositions() {
		rows = append(rows, Row{
			ID:              p.ID,
			Opened:          p.Opened.Local().Format("2006-01-02 15:04"),
			Symbol:          p.Symbol,
			Strategy:        p.Strategy,
			Strike:          p.Strike,
			DTE:             int(math.Max(0, math.RoundToEven(p.DTE))),
			CaptureProgress: fmt.Sprintf("%.0f%% | %.0f%%", p.PremCaptured, p.TimeUsedPct),
			UnrealizedPnL:   models.Round(p.UnrealizedPnL, 2),
			ExitState:       p.ExitState,
			Why:             p.Why,
			PremCaptured:    p.PremCaptured,
			TimeUsedPct:     p.TimeUsedPct,
			OptionSymbol:    p.OptionSymbol,
			BrokerOrderID:   p.BrokerOrderID,
		})
	}
	return rows
}

// AutoLog returns up to n automatic-action entries, newest first, as
// "15:04:05 – message".
func (w *Watcher) AutoLog(n int) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.autoLogLocked(n)
}

func (w *Watcher) autoLogLocked(n int) []string {
	var out []string
	for i := len(w.state.ActionLog) - 1; i >= 0 && len(out) < n; i-- {
		e := w.state.ActionLog[i]
		if e.Kind != "toast" || !strings.HasPrefix(e.Message, "Auto") {
			continue
		}
		out = append(out, e.Time.Local().Format("15:04:05")+" – "+e.Message)
	}
	return out
}

// Panels computes every dashboard panel from the current document.
func (w *Watcher) Panels() Panels {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	bal := w.config.Engine.StartingBalance
	positions := w.state.Positions
	risk := w.state.Risk
	perf := portfolio.Performance(positions, bal, now)

	var out Panels
	out.Mode = w.config.Mode()
	out.Settings = w.settings.Summary()
	out.Health = Health{
		Equity:        perf.Equity,
		EquityPct:     perf.EquityPct,
		RealizedToday: perf.RealizedToday,
		CapturePct:    perf.CapturePct,
		OpenTrades:    risk.OpenTrades,
		CollateralPct: risk.CollateralPct * 100,
		Concentration: risk.MaxSymbolFraction * 100,
		NearExpiry:    risk.NearExpiry,
	}

	total := portfolio.TotalRealized(positions)
	out.Summary = Summary{
		TotalPnL:    total,
		TodayPnL:    perf.RealizedToday,
		AvgDailyPnL: portfolio.AvgDailyRealized(positions, perf.RealizedToday),
	}
	if bal != 0 {
		out.Summary.TotalPct = total / bal * 100
	}

	out.Pacing = Pacing{
		Status:      portfolio.Pacing(perf.AvgCapture, perf.AvgTimeUsed, pacingTolerance),
		AvgCapture:  perf.AvgCapture,
		AvgTimeUsed: perf.AvgTimeUsed,
	}

	out.Goal = portfolio.DailyGoal(perf.RealizedToday, w.state.DailyProfitGoal)
	out.GoalLine = fmt.Sprintf("Need $%.0f (~%d more)", out.Goal.Remaining, out.Goal.TradesNeeded)

	hist := append([]float64(nil), w.state.EfficiencyHistory...)
	latest := 1.0
	if len(hist) > 0 {
		latest = hist[len(hist)-1]
	}
	out.Efficiency = Efficiency{Latest: latest, Label: portfolio.EfficiencyLabel(latest), History: hist}

	out.Actions = w.actionsLocked(out.Pacing.Status)

	out.AutoLog = w.autoLogLocked(autoLogSize)
	if len(out.AutoLog) == 0 {
		out.AutoLog = []string{"No auto actions yet."}
	}

	s := w.settings
	out.Guidance = []string{
		fmt.Sprintf("Paper Close Engine: partial @ %.0f%%, auto target close, early-lock when Cap%% ≥ Time%% + %.0f.", s.PartialAtPct, s.EarlyLockDiffPct),
		"If Cap% ≥ Time% + 5 → you’re ahead.",
		fmt.Sprintf("Pacing: %s (Cap %.0f%% vs Time %.0f%%).", out.Pacing.Status, out.Pacing.AvgCapture, out.Pacing.AvgTimeUsed),
		fmt.Sprintf("Goal progress: %.0f%% of daily target.", out.Goal.Pct),
	}

	eq := w.state.EquityHistory
	if len(eq) > sparklineSize {
		eq = eq[len(eq)-sparklineSize:]
	}
	out.Equity = append([]models.EquityPoint(nil), eq...)

	for i := len(w.state.ActionLog) - 1; i >= 0; i-- {
		if w.state.ActionLog[i].Kind == "toast" {
			e := w.state.ActionLog[i]
			out.Toast = &e
			break
		}
	}
	return out
}

// actionsLocked builds the action hints: a near-goal tip when pacing is
// behind and the hottest IV ranks at or above the alert threshold.
func (w *Watcher) actionsLocked(pacing string) []string {
	var out []string
	if pacing == "Behind" {
		for _, p := range w.state.Positions {
			if p.IsIncome() && !p.Closed && p.PremCaptured >= p.Target(w.params.BaseTarget)-nearGoalMargin {
				out = append(out, "Tip: Close near-goal winners.")
				break
			}
		}
	}

	threshold := w.settings.IVRAlertThreshold
	if hot := portfolio.HotIVR(w.state.LastIVR, threshold, hotIVRLimit); len(hot) > 0 {
		names := make([]string, len(hot))
		for i, h := range hot {
			names[i] = fmt.Sprintf("%s (%.0f)", h.Symbol, h.IVR)
		}
		out = append(out, fmt.Sprintf("IVR Hot: %s ≥ %.0f. Consider prioritizing premium sells.", strings.Join(names, ", "), threshold))
	}

	if len(out) == 0 {
		out = []string{"No urgent actions."}
	}
	return out
}

// StatusText is the plain-text dashboard sent over chat.
func (w *Watcher) StatusText() string {
	p := w.Panels()
	rows := w.Rows()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 *THETA WATCHER* (%s)\n", p.Mode))
	sb.WriteString(fmt.Sprintf("Equity: $%.0f (%+.1f%%) | Today: $%.0f\n", p.Health.Equity, p.Health.EquityPct, p.Health.RealizedToday))
	sb.WriteString(fmt.Sprintf("Collateral: %.1f%% | Concentration: %.1f%% | Near expiry: %d\n",
		p.Health.CollateralPct, p.Health.Concentration, p.Health.NearExpiry))
	sb.WriteString(fmt.Sprintf("Pacing: %s | Efficiency: %s (%.2f)\n", p.Pacing.Status, p.Efficiency.Label, p.Efficiency.Latest))
	sb.WriteString(fmt.Sprintf("Goal: $%.0f of $%.0f. %s\n", p.Goal.Achieved, p.Goal.Goal, p.GoalLine))

	if len(rows) == 0 {
		sb.WriteString("\nNo open positions.")
		return sb.String()
	}
	sb.WriteString("\n")
	for _, r := range rows {
		state := string(r.ExitState)
		if state == "" {
			state = "-"
		}
		sb.WriteString(fmt.Sprintf("• `%s` %s %.2fP %dd %s $%.2f [%s]\n",
			shortID(r.ID), r.Symbol, r.Strike, r.DTE, r.CaptureProgress, r.UnrealizedPnL, state))
	}
	for _, a := range p.Actions {
		sb.WriteString(a + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
