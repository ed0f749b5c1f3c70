// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tick metrics
	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "theta_ticks_total",
			Help: "Total number of heartbeat ticks",
		},
		[]string{"status"}, // status: success|error
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "theta_tick_duration_seconds",
			Help:    "Heartbeat tick duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 12},
		},
	)

	// Position metrics
	AutoActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "theta_auto_actions_total",
			Help: "Automatic close actions taken by the paper close engine",
		},
		[]string{"kind"}, // kind: target|early_lock|partial|failed
	)

	ManualCloses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "theta_manual_closes_total",
			Help: "Operator-requested closes",
		},
		[]string{"kind"}, // kind: full|partial
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "theta_positions_open",
			Help: "Number of open positions",
		},
	)

	Equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "theta_equity_usd",
			Help: "Starting balance plus realized and unrealized P&L",
		},
	)

	CollateralPct = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "theta_collateral_fraction",
			Help: "Collateral of open positions as a fraction of the starting balance",
		},
	)

	// Market and broker metrics
	MarketFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "theta_market_fallbacks_total",
			Help: "Live market data calls answered by the simulated source",
		},
		[]string{"call"}, // call: price|chain|ivr
	)

	Scans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "theta_scans_total",
			Help: "Candidate scans by source",
		},
		[]string{"source"}, // source: live|sim
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "theta_orders_total",
			Help: "Order submissions by outcome",
		},
		[]string{"status"}, // status: dry_run|sent|error|cancelled|cancel_error
	)

	StateSaveErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "theta_state_save_errors_total",
			Help: "Failed writes of the state document",
		},
	)
)

var initOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(Ticks)
		prometheus.MustRegister(TickDuration)
		prometheus.MustRegister(AutoActions)
		prometheus.MustRegister(ManualCloses)
		prometheus.MustRegister(PositionsOpen)
		prometheus.MustRegister(Equity)
		prometheus.MustRegister(CollateralPct)
		prometheus.MustRegister(MarketFallbacks)
		prometheus.MustRegister(Scans)
		prometheus.MustRegister(Orders)
		prometheus.MustRegister(StateSaveErrors)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTick records one heartbeat.
func RecordTick(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	Ticks.WithLabelValues(status).Inc()
	TickDuration.Observe(duration.Seconds())
}

// RecordPortfolio sets the portfolio gauges.
func RecordPortfolio(open int, equity, collateral float64) {
	PositionsOpen.Set(float64(open))
	Equity.Set(equity)
	CollateralPct.Set(collateral)
}
