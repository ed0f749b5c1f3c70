package lifecycle

import (
	"time"

	"theta_watcher/internal/models"
)

// CloseFull realizes all unrealized P&L and closes p. It reports false and
// does nothing when p is already closed.
func CloseFull(p *models.Position, now time.Time) bool {
	if p.Closed {
		return false
	}
	p.RealizedPnL = models.Round(p.RealizedPnL+p.UnrealizedPnL, 2)
	p.UnrealizedPnL = 0
	p.Closed = true
	at := now
	p.ClosedAt = &at
	return true
}

// ClosePartial realizes half the unrealized P&L and leaves p open. It does
// not touch PartialClosed, which records only the automatic partial.
func ClosePartial(p *models.Position) bool {
	if p.Closed {
		return false
	}
	half := p.UnrealizedPnL / 2
	p.RealizedPnL += half
	p.UnrealizedPnL -= half
	return true
}
