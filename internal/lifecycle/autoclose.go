package lifecycle

import (
	"fmt"
	"time"

	"theta_watcher/internal/models"
)

// Settings are the operator-adjustable close rules.
type Settings struct {
	AutoClose        bool
	PartialAtPct     float64
	EarlyLockDiffPct float64
}

// ActionKind names which close rule fired.
type ActionKind string

const (
	ActionTarget    ActionKind = "target"
	ActionEarlyLock ActionKind = "early_lock"
	ActionPartial   ActionKind = "partial"
	ActionFailed    ActionKind = "failed"
)

// Action records one thing the engine did to one position.
type Action struct {
	PositionID string
	Symbol     string
	Kind       ActionKind
	Message    string
}

// closeFull is swapped in tests to fail a single position.
var closeFull = CloseFull

// CloseEngine applies the paper close policy to open income positions.
type CloseEngine struct {
	Params Params
}

// Run walks positions in order and applies at most one rule to each:
// full close at target, full close on early lock, then a one-time partial.
// A panic while handling one position is reported as an ActionFailed and
// the remaining positions are still processed.
func (e CloseEngine) Run(positions []models.Position, s Settings, now time.Time) []Action {
	if !s.AutoClose {
		return nil
	}

	var actions []Action
	for i := range positions {
		p := &positions[i]
		if p.Closed || !p.IsIncome() {
			continue
		}
		if a, ok := e.evaluate(p, s, now); ok {
			actions = append(actions, a)
		}
	}
	return actions
}

func (e CloseEngine) evaluate(p *models.Position, s Settings, now time.Time) (a Action, fired bool) {
	defer func() {
		if r := recover(); r != nil {
			a = Action{
				PositionID: p.ID,
				Symbol:     p.Symbol,
				Kind:       ActionFailed,
				Message:    fmt.Sprintf("Auto-close skipped %s: %v", p.Symbol, r),
			}
			fired = true
		}
	}()

	capture := p.PremCaptured
	timeUsed := p.TimeUsedPct
	target := p.Target(e.Params.BaseTarget)

	switch {
	case capture >= target:
		closeFull(p, now)
		a = Action{Kind: ActionTarget, Message: fmt.Sprintf("Auto-closed (target): %s at %.0f%% (target %.0f%%)", p.Symbol, capture, target)}
	case capture-timeUsed >= s.EarlyLockDiffPct:
		closeFull(p, now)
		a = Action{Kind: ActionEarlyLock, Message: fmt.Sprintf("Auto-closed (early-lock): %s — Cap %.0f%% vs Time %.0f%%", p.Symbol, capture, timeUsed)}
	case !p.PartialClosed && capture >= s.PartialAtPct:
		ClosePartial(p)
		p.PartialClosed = true
		a = Action{Kind: ActionPartial, Message: fmt.Sprintf("Auto partial: %s at %.0f%% (took half)", p.Symbol, capture)}
	default:
		return Action{}, false
	}

	Normalize(p, e.Params)
	a.PositionID = p.ID
	a.Symbol = p.Symbol
	return a, true
}
