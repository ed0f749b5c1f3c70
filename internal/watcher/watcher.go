package watcher

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"theta_watcher/internal/config"
	"theta_watcher/internal/lifecycle"
	"theta_watcher/internal/logger"
	"theta_watcher/internal/market"
	"theta_watcher/internal/metrics"
	"theta_watcher/internal/models"
	"theta_watcher/internal/portfolio"
	"theta_watcher/internal/storage"
)

const (
	equityHistoryMax     = 100
	efficiencyHistoryMax = 100
)

// Notifier receives operator-facing messages. Implementations must not block.
type Notifier interface {
	Notify(text string)
}

// Options wires a Watcher. Source and Store are required. Sim defaults to a
// time-seeded simulated source, Simulator to one built from the engine
// config. Broker and Notifier may be nil.
type Options struct {
	Config    *config.Config
	Settings  config.Settings
	Store     *storage.Store
	Source    market.DataSource
	Sim       *market.Simulated
	Broker    market.Broker
	Simulator *lifecycle.Simulator
	Notifier  Notifier
}

// Watcher owns the portfolio document. Every read and write of state goes
// through mu; tickMu keeps heartbeats from overlapping.
type Watcher struct {
	config    *config.Config
	store     *storage.Store
	source    market.DataSource
	sim       *market.Simulated
	broker    market.Broker
	simulator *lifecycle.Simulator
	engine    lifecycle.CloseEngine
	params    lifecycle.Params
	notifier  Notifier

	tickMu     sync.Mutex
	mu         sync.Mutex
	state      models.PortfolioState
	settings   config.Settings
	candidates []models.Candidate
	commands   []CommandDoc

	now   func() time.Time
	newID func() string
}

// New loads the stored portfolio and normalizes it.
func New(opts Options) (*Watcher, error) {
	cfg := opts.Config
	st, err := opts.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	params := lifecycle.Params{
		BaseTarget:    cfg.Engine.BaseTarget,
		EfficiencyCap: cfg.Engine.EfficiencyCap,
		Exit:          lifecycle.DefaultExitConfig(),
	}

	sim := opts.Sim
	if sim == nil {
		sim = market.NewSimulated(time.Now().UnixNano())
	}
	simulator := opts.Simulator
	if simulator == nil {
		simulator = &lifecycle.Simulator{
			Rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
			PriceVol: cfg.Engine.PriceMoveSD,
			DTEStep:  cfg.Engine.DTEDecay,
		}
	}

	if len(st.Watchlist) == 0 {
		st.Watchlist = append([]string(nil), cfg.Engine.Watchlist...)
	}
	if st.DailyProfitGoal == 0 {
		st.DailyProfitGoal = cfg.Engine.DailyProfitGoal
	}
	lifecycle.NormalizeAll(st.Positions, params)
	st.Risk = portfolio.Risk(st.Positions, cfg.Engine.StartingBalance)

	w := &Watcher{
		config:    cfg,
		store:     opts.Store,
		source:    opts.Source,
		sim:       sim,
		broker:    opts.Broker,
		simulator: simulator,
		engine:    lifecycle.CloseEngine{Params: params},
		params:    params,
		notifier:  opts.Notifier,
		state:     st,
		settings:  opts.Settings,
		now:       time.Now,
		newID:     uuid.NewString,
		commands: []CommandDoc{
			{"/ping", "Connectivity check", "/ping"},
			{"/status", "Open positions and account health", "/status"},
			{"/scan", "Scan the watchlist for short puts", "/scan"},
			{"/add", "Open a position from the last scan", "/add <candidate>"},
			{"/close", "Close a position", "/close <id>"},
			{"/half", "Close half of a position", "/half <id>"},
			{"/send", "Send a short put order to the broker", "/send <id>"},
			{"/auto", "Toggle the paper close engine", "/auto on|off"},
			{"/settings", "Show or change automation settings", "/settings [partial=50] [earlylock=5] [ivr=50]"},
			{"/log", "Recent automatic actions", "/log"},
		},
	}
	return w, nil
}

// Poll runs one heartbeat: advance every open position, normalize, apply
// the close engine, refresh risk and history, then persist. A panic
// anywhere in the tick is recovered and reported as an error.
func (w *Watcher) Poll(ctx context.Context) (err error) {
	w.tickMu.Lock()
	defer w.tickMu.Unlock()

	start := time.Now()
	defer func() {
		metrics.RecordTick(time.Since(start), err)
	}()

	prices := w.fetchPrices(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
			logger.Errorf("heartbeat: %v", err)
			w.logLocked(models.LevelError, fmt.Sprintf("Tick failed: %v", r), false)
		}
	}()

	now := w.now()
	w.state.TickCounter++
	w.advanceLocked(prices)
	lifecycle.NormalizeAll(w.state.Positions, w.params)
	w.applyCloseRulesLocked(now)
	w.refreshLocked(now)
	w.saveLocked()
	return nil
}

// Settings returns the automation settings in force.
func (w *Watcher) Settings() config.Settings {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settings
}

// UpdateSettings validates and applies s, persists it to the settings file
// and records the change in the action log.
func (w *Watcher) UpdateSettings(s config.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	w.settings = s
	w.logLocked(models.LevelSuccess, "Automation updated: "+s.Summary(), true)
	w.saveLocked()
	w.mu.Unlock()

	if path := w.config.Paper.SettingsPath; path != "" {
		if err := config.SaveSettings(path, s); err != nil {
			return fmt.Errorf("persist settings: %w", err)
		}
	}
	return nil
}

// ApplySettings is the hot-reload hook. Unchanged settings are ignored.
func (w *Watcher) ApplySettings(s config.Settings) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s == w.settings {
		return
	}
	w.settings = s
	w.logLocked(models.LevelSuccess, "Automation updated: "+s.Summary(), true)
	w.saveLocked()
}

// State returns a deep enough copy of the document for read-only callers.
func (w *Watcher) State() models.PortfolioState {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.state
	st.Positions = append([]models.Position(nil), w.state.Positions...)
	st.ActionLog = append(models.ActionLog(nil), w.state.ActionLog...)
	st.ScanHistory = append([]models.ScanRecord(nil), w.state.ScanHistory...)
	st.EquityHistory = append([]models.EquityPoint(nil), w.state.EquityHistory...)
	st.EfficiencyHistory = append([]float64(nil), w.state.EfficiencyHistory...)
	st.Watchlist = append([]string(nil), w.state.Watchlist...)
	st.LastIVR = make(map[string]models.IVRSample, len(w.state.LastIVR))
	for k, v := range w.state.LastIVR {
		st.LastIVR[k] = v
	}
	return st
}

// Watchlist returns the symbols scans walk.
func (w *Watcher) Watchlist() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.state.Watchlist...)
}

// Save persists the document. Used on shutdown.
func (w *Watcher) Save() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.saveLocked()
}

// logLocked appends to the action log, mirrors the entry to the process
// log, and forwards it to the notifier when notify is set.
func (w *Watcher) logLocked(level, msg string, notify bool) {
	w.state.ActionLog = w.state.ActionLog.Append(models.ActionLogEntry{
		Time:    w.now(),
		Level:   level,
		Message: msg,
	}, w.config.Engine.ActionLogMax)

	switch level {
	case models.LevelError:
		logger.Errorf("%s", msg)
	case models.LevelWarning:
		logger.Warnf("%s", msg)
	default:
		logger.Infof("%s", msg)
	}

	if notify && w.notifier != nil {
		w.notifier.Notify(levelIcon(level) + " " + msg)
	}
}

func (w *Watcher) saveLocked() {
	w.state.LastSync = w.now().Format(time.RFC3339)
	if err := w.store.Save(w.state); err != nil {
		// keep going on the in-memory copy; the next tick retries
		logger.Errorf("save state: %v", err)
		metrics.StateSaveErrors.Inc()
	}
}

func (w *Watcher) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, w.config.Timeout())
}

func levelIcon(level string) string {
	switch level {
	case models.LevelSuccess:
		return "✅"
	case models.LevelWarning:
		return "⚠️"
	case models.LevelError:
		return "❌"
	default:
		return "ℹ️"
	}
}
