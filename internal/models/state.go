package models

import "time"

// Action log levels.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// ActionLogEntry is one operator-visible event (a "toast").
type ActionLogEntry struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"type"`
	Level   string    `json:"level"`
	Message string    `json:"msg"`
}

// ActionLog is an append-only log bounded to the most recent entries.
type ActionLog []ActionLogEntry

// Append adds e and evicts the oldest entries beyond max.
func (l ActionLog) Append(e ActionLogEntry, max int) ActionLog {
	if e.Kind == "" {
		e.Kind = "toast"
	}
	l = append(l, e)
	if max > 0 && len(l) > max {
		l = append(ActionLog(nil), l[len(l)-max:]...)
	}
	return l
}

// ScanRecord notes how many candidates a scan produced.
type ScanRecord struct {
	Time  time.Time `json:"time"`
	Count int       `json:"count"`
	Live  bool      `json:"live"`
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// IVRSample is the last IV rank read for a symbol. IVR is nil when the
// source had none.
type IVRSample struct {
	IVR *float64  `json:"ivr"`
	At  time.Time `json:"ts"`
}

// RiskSnapshot is the portfolio risk projection over open positions.
type RiskSnapshot struct {
	CollateralPct     float64 `json:"collateral_pct"`      // fraction of starting balance
	MaxSymbolFraction float64 `json:"max_symbol_fraction"` // largest per-symbol share of open positions
	NearExpiry        int     `json:"near_expiry"`         // open positions with DTE <= 2
	OpenTrades        int     `json:"open_trades"`
}

// PortfolioState is the whole durable document: read once at startup and
// written whole after every mutating tick.
type PortfolioState struct {
	Version           string               `json:"version"`
	LastSync          string               `json:"last_sync"`
	Positions         []Position           `json:"trades"`
	ActionLog         ActionLog            `json:"action_queue"`
	ScanHistory       []ScanRecord         `json:"scan_history"`
	EquityHistory     []EquityPoint        `json:"performance"`
	EfficiencyHistory []float64            `json:"eff_history"`
	TickCounter       int                  `json:"tick_counter"`
	LastIVR           map[string]IVRSample `json:"last_ivr"`
	Risk              RiskSnapshot         `json:"risk_cache"`
	Watchlist         []string             `json:"watchlist,omitempty"`
	DailyProfitGoal   float64              `json:"daily_profit_goal,omitempty"`
}

// OpenPositions returns copies of the positions that are not closed.
func (s *PortfolioState) OpenPositions() []Position {
	var out []Position
	for _, p := range s.Positions {
		if p.IsOpen() {
			out = append(out, p)
		}
	}
	return out
}

// Find returns a pointer into s.Positions for id, or nil.
func (s *PortfolioState) Find(id string) *Position {
	for i := range s.Positions {
		if s.Positions[i].ID == id {
			return &s.Positions[i]
		}
	}
	return nil
}
