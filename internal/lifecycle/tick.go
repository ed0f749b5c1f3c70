package lifecycle

import (
	"math"
	"math/rand"

	"theta_watcher/internal/models"
)

// Simulator advances open positions by one heartbeat.
type Simulator struct {
	Rand     *rand.Rand
	PriceVol float64 // stddev of the per-tick fractional price move
	DTEStep  float64 // days removed per tick
}

// NewSimulator returns a Simulator with the stock volatility and decay.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{
		Rand:     rand.New(rand.NewSource(seed)),
		PriceVol: 0.0035,
		DTEStep:  0.2,
	}
}

// Step moves the underlying by a random fraction of itself and, for income
// positions, decays DTE and re-marks the option toward its theoretical
// decay curve. Closed positions are left alone.
func (s *Simulator) Step(p *models.Position, underlying float64) {
	if p.Closed {
		return
	}

	u := underlying + s.Rand.NormFloat64()*s.PriceVol*underlying
	p.UnderlyingMark = models.Round(math.Max(1, u), 2)

	if !p.IsIncome() {
		return
	}

	p.DTE = math.Max(0, models.Round(p.DTE-s.DTEStep, 2))

	initial := math.Max(1, p.InitialDTE)
	used := (initial - p.DTE) / initial
	p.TimeUsedPct = models.Round(math.Max(0, math.Min(1, used))*100, 1)

	credit := p.InitialCredit
	if credit <= 0 {
		return
	}

	decay := math.Max(0, 1-p.Target(DefaultBaseTarget)/100*used)
	theo := credit * math.Pow(decay, 1.05)
	mark := 0.6*p.CurrentMark + 0.4*math.Max(0.05, theo*(1-p.Delta*0.05))
	p.CurrentMark = models.Round(mark, 2)

	kept := credit - mark
	p.PremCaptured = models.Round(math.Max(0, kept/credit*100), 2)
	p.UnrealizedPnL = models.Round(kept*100, 2)
}
