package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// StrategyIncome is the only strategy the engine manages: a single short put.
const StrategyIncome = "income"

// ExitState is the urgency label attached to an open income position.
type ExitState string

const (
	ExitNone       ExitState = ""
	ExitGoal       ExitState = "Goal"
	ExitEarlyLock  ExitState = "EarlyLock"
	ExitUrgent     ExitState = "Urgent"
	ExitRollWindow ExitState = "RollWindow"
	ExitMonitor    ExitState = "Monitor"
)

// Position represents a single synthetic short-option position ("trade").
//
// Fields that a legacy state file may lack are either pointers (nil means
// "never set") or take their zero value as "unset"; the normalizer in
// internal/lifecycle fills them in.
type Position struct {
	ID             string     `json:"id"`
	Opened         time.Time  `json:"opened"`
	Symbol         string     `json:"symbol"`
	Strategy       string     `json:"strategy_type"`
	Strike         float64    `json:"strike"`
	DTE            float64    `json:"dte"`         // decays every tick, floored at 0
	InitialDTE     float64    `json:"initial_dte"` // fixed at creation
	Delta          float64    `json:"delta"`
	IVRank         *float64   `json:"iv_rank,omitempty"` // entry IV rank, nil when unknown
	Credit         float64    `json:"credit,omitempty"`  // raw candidate credit, legacy documents only
	InitialCredit  float64    `json:"initial_credit"`
	CurrentMark    float64    `json:"current_option_mark"`
	UnderlyingMark float64    `json:"underlying_mark,omitempty"`
	PremCaptured   float64    `json:"prem_captured_pct"`
	TimeUsedPct    float64    `json:"time_used_pct"`
	TargetCapture  *float64   `json:"target_capture_pct,omitempty"`
	UnrealizedPnL  float64    `json:"unrealized_pnl"`
	RealizedPnL    float64    `json:"realized_pnl"`
	Closed         bool       `json:"closed"`
	ClosedAt       *time.Time `json:"closed_time,omitempty"`
	PartialClosed  bool       `json:"partial_closed"`
	Why            string     `json:"why_summary"`
	Expiration     string     `json:"expiration,omitempty"`    // YYYY-MM-DD when sourced from a live chain
	OptionSymbol   string     `json:"option_symbol,omitempty"` // contract symbol when sourced from a live chain
	BrokerOrderID  string     `json:"broker_order_id,omitempty"`

	// Cached projections, recomputed by the normalizer. Never a source of truth.
	CaptureEfficiency *float64  `json:"capture_efficiency"`
	ExitState         ExitState `json:"exit_state"`
}

// IsIncome reports whether the position is a short-put income trade.
func (p Position) IsIncome() bool {
	return p.Strategy == StrategyIncome
}

// IsOpen reports whether the position still participates in ticks.
func (p Position) IsOpen() bool {
	return !p.Closed
}

// Target returns the profit-capture target, or fallback when unset.
func (p Position) Target(fallback float64) float64 {
	if p.TargetCapture == nil {
		return fallback
	}
	return *p.TargetCapture
}

// IV returns the entry IV rank, or the neutral 50 when unknown.
func (p Position) IV() float64 {
	if p.IVRank == nil {
		return NeutralIVRank
	}
	return *p.IVRank
}

// NeutralIVRank is substituted whenever an IV rank is unavailable.
const NeutralIVRank = 50.0

// Float returns a pointer to v. Handy for optional fields.
func Float(v float64) *float64 {
	return &v
}

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
