package watcher

import (
	"context"
	"fmt"
	"math"
	"strings"

	"theta_watcher/internal/lifecycle"
	"theta_watcher/internal/logger"
	"theta_watcher/internal/metrics"
	"theta_watcher/internal/models"
	"theta_watcher/internal/portfolio"
	"theta_watcher/internal/selector"
)

// ScanResult is what a scan produced and what auto-add did with it.
type ScanResult struct {
	Candidates []models.Candidate `json:"candidates"`
	Live       bool               `json:"live"`
	Added      []models.Position  `json:"added"`
}

// Scan builds one candidate per watchlist symbol. In live mode each comes
// from the option chain; if no symbol yields one the scan falls back to
// simulated candidates priced off the live (or fallback) quote. The scan is
// recorded in the history and, with auto-add on, the first income
// candidates become positions.
func (w *Watcher) Scan(ctx context.Context) (ScanResult, error) {
	watch := w.Watchlist()
	if len(watch) == 0 {
		return ScanResult{}, fmt.Errorf("%w: watchlist is empty", models.ErrInvalidInput)
	}

	var res ScanResult
	if w.config.Engine.UseLive {
		res.Candidates = w.liveCandidates(ctx, watch)
		res.Live = len(res.Candidates) > 0
		if !res.Live {
			logger.Warnf("scan: live chains unavailable, falling back to simulated candidates")
			res.Candidates = w.quotedCandidates(ctx, watch)
		}
	} else {
		logger.Infof("scan: simulation mode, watchlist %v", watch)
		res.Candidates = w.simCandidates(watch)
	}

	source := "sim"
	if res.Live {
		source = "live"
	}
	metrics.Scans.WithLabelValues(source).Inc()

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.state.ScanHistory = append(w.state.ScanHistory, models.ScanRecord{Time: now, Count: len(res.Candidates), Live: res.Live})
	if limit := w.config.Engine.ScanHistoryMax; limit > 0 && len(w.state.ScanHistory) > limit {
		w.state.ScanHistory = append([]models.ScanRecord(nil), w.state.ScanHistory[len(w.state.ScanHistory)-limit:]...)
	}
	w.candidates = res.Candidates
	w.logLocked(models.LevelInfo, fmt.Sprintf("Scan: %d", len(res.Candidates)), false)

	if w.config.Engine.AutoAdd {
		for _, c := range res.Candidates {
			if len(res.Added) >= w.config.Engine.AutoAddMax {
				break
			}
			if p, ok := w.openLocked(c); ok {
				res.Added = append(res.Added, p)
			}
		}
		w.logLocked(models.LevelInfo, fmt.Sprintf("Added %d trades", len(res.Added)), len(res.Added) > 0)
	}

	w.saveLocked()
	return res, nil
}

// Candidates returns the result of the last scan.
func (w *Watcher) Candidates() []models.Candidate {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.Candidate(nil), w.candidates...)
}

// AddCandidate opens a position from the last scan's candidate with the
// given id (or unique id prefix).
func (w *Watcher) AddCandidate(id string) (models.Position, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var match []models.Candidate
	for _, c := range w.candidates {
		if c.ID == id {
			match = []models.Candidate{c}
			break
		}
		if id != "" && strings.HasPrefix(c.ID, id) {
			match = append(match, c)
		}
	}
	switch len(match) {
	case 0:
		return models.Position{}, fmt.Errorf("candidate %s: %w", id, models.ErrNoCandidate)
	case 1:
	default:
		return models.Position{}, fmt.Errorf("%w: candidate prefix %s is ambiguous", models.ErrInvalidInput, id)
	}

	p, ok := w.openLocked(match[0])
	if !ok {
		return models.Position{}, fmt.Errorf("%w: %s is not an income candidate", models.ErrInvalidInput, match[0].Symbol)
	}
	w.logLocked(models.LevelInfo, "Added "+p.Symbol, false)
	w.saveLocked()
	return p, nil
}

// AddPosition opens a position straight from a caller-built candidate.
func (w *Watcher) AddPosition(c models.Candidate) (models.Position, error) {
	if c.Symbol == "" || c.Credit <= 0 || c.DTE <= 0 {
		return models.Position{}, fmt.Errorf("%w: candidate needs symbol, positive credit and DTE", models.ErrInvalidInput)
	}
	if c.ID == "" {
		c.ID = w.newID()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.openLocked(c)
	if !ok {
		return models.Position{}, fmt.Errorf("%w: strategy %q is not supported", models.ErrInvalidInput, c.Strategy)
	}
	w.logLocked(models.LevelInfo, "Added "+p.Symbol, false)
	w.saveLocked()
	return p, nil
}

func (w *Watcher) openLocked(c models.Candidate) (models.Position, bool) {
	if w.state.Find(c.ID) != nil {
		return models.Position{}, false
	}
	p, ok := lifecycle.Open(c, w.params, w.now())
	if !ok {
		return models.Position{}, false
	}
	w.state.Positions = append(w.state.Positions, p)
	w.state.Risk = portfolio.Risk(w.state.Positions, w.config.Engine.StartingBalance)
	return p, true
}

// PollIVR reads the IV rank of the first watchlist symbol, caches it and
// raises an alert at or above the threshold. It returns the status line
// shown next to the quotes indicator.
func (w *Watcher) PollIVR(ctx context.Context) string {
	watch := w.Watchlist()
	if len(watch) == 0 {
		return "No symbols"
	}
	sym := watch[0]
	if !w.config.Engine.UseLive {
		return sym + ": sim mode — set USE_LIVE=true for IVR"
	}

	cctx, cancel := w.timeout(ctx)
	ivr, err := w.source.IVRank(cctx, sym)
	cancel()
	if err != nil {
		logger.Warnf("iv rank %s: %v", sym, err)
		ivr = nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.LastIVR == nil {
		w.state.LastIVR = map[string]models.IVRSample{}
	}
	w.state.LastIVR[sym] = models.IVRSample{IVR: ivr, At: w.now()}

	threshold := w.settings.IVRAlertThreshold
	status := fmt.Sprintf("%s: IVR n/a (%s)", sym, w.config.Mode())
	if ivr != nil {
		if *ivr >= threshold {
			w.logLocked(models.LevelInfo, fmt.Sprintf("IVR Alert: %s = %.0f (≥ %.0f)", sym, *ivr, threshold), true)
		}
		status = fmt.Sprintf("%s: IVR %.1f (≥%.0f)", sym, *ivr, threshold)
	}
	w.saveLocked()
	return status
}

func (w *Watcher) window() selector.Window {
	e := w.config.Engine
	return selector.Window{DeltaMin: e.DeltaMin, DeltaMax: e.DeltaMax, DTEMin: e.DTEMin, DTEMax: e.DTEMax}
}

// liveCandidates picks one contract per symbol from its chain. Symbols
// whose price, chain, pick or fill is unavailable are skipped.
func (w *Watcher) liveCandidates(ctx context.Context, watch []string) []models.Candidate {
	var out []models.Candidate
	for _, sym := range watch {
		c, err := w.liveCandidate(ctx, sym)
		if err != nil {
			logger.Debugf("scan %s: %v", sym, err)
			continue
		}
		out = append(out, c)
	}
	return out
}

func (w *Watcher) liveCandidate(ctx context.Context, sym string) (models.Candidate, error) {
	cctx, cancel := w.timeout(ctx)
	defer cancel()

	price, err := w.source.Price(cctx, sym)
	if err != nil {
		return models.Candidate{}, err
	}
	if price <= 0 {
		return models.Candidate{}, fmt.Errorf("%w: no price", models.ErrDataUnavailable)
	}
	quotes, err := w.source.Chain(cctx, sym)
	if err != nil {
		return models.Candidate{}, err
	}
	res := selector.Select(quotes, w.window(), w.now())
	if !res.Found {
		return models.Candidate{}, models.ErrNoCandidate
	}
	credit, ok := res.Pick.Fill(w.config.Engine.Slippage)
	if !ok {
		return models.Candidate{}, fmt.Errorf("%w: no fill for %s", models.ErrNoCandidate, res.Pick.Symbol)
	}

	ivr := models.NeutralIVRank
	if v, err := w.source.IVRank(cctx, sym); err == nil && v != nil {
		ivr = *v
	}

	return models.Candidate{
		ID:           w.newID(),
		Strategy:     models.StrategyIncome,
		Symbol:       sym,
		Price:        models.Round(price, 2),
		Strike:       res.Pick.Strike,
		DTE:          res.Pick.DTE,
		Delta:        math.Abs(res.Pick.Delta),
		IVRank:       math.Round(ivr),
		Credit:       credit,
		Expiration:   res.Pick.Expiration,
		OptionSymbol: res.Pick.Symbol,
		Live:         true,
	}, nil
}

// quotedCandidates makes simulated contracts around real quotes.
func (w *Watcher) quotedCandidates(ctx context.Context, watch []string) []models.Candidate {
	out := make([]models.Candidate, 0, len(watch))
	for _, sym := range watch {
		cctx, cancel := w.timeout(ctx)
		price, err := w.source.Price(cctx, sym)
		if err != nil || price <= 0 {
			price, _ = w.sim.Price(cctx, sym)
		}
		ivr := models.NeutralIVRank
		if v, err := w.source.IVRank(cctx, sym); err == nil && v != nil {
			ivr = *v
		}
		cancel()
		out = append(out, w.simCandidate(sym, models.Round(price, 2), math.Round(ivr)))
	}
	return out
}

func (w *Watcher) simCandidates(watch []string) []models.Candidate {
	out := make([]models.Candidate, 0, len(watch))
	for _, sym := range watch {
		price := models.Round(w.sim.Uniform(40, 300), 2)
		ivr := float64(w.sim.Intn(30, 80))
		out = append(out, w.simCandidate(sym, price, ivr))
	}
	return out
}

// simCandidate draws delta and DTE from the configured window and places
// the strike just under the money.
func (w *Watcher) simCandidate(sym string, price, ivr float64) models.Candidate {
	e := w.config.Engine
	delta := w.sim.Uniform(e.DeltaMin, e.DeltaMax)
	return models.Candidate{
		ID:       w.newID(),
		Strategy: models.StrategyIncome,
		Symbol:   sym,
		Price:    price,
		Strike:   models.Round(price*(1-delta*0.1), 2),
		DTE:      w.sim.Intn(e.DTEMin, e.DTEMax),
		Delta:    delta,
		IVRank:   ivr,
		Credit:   models.Round(w.sim.Uniform(0.8, 2.5), 2),
	}
}
