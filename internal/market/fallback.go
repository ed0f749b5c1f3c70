package market

import (
	"context"
	"fmt"

	"theta_watcher/internal/logger"
	"theta_watcher/internal/metrics"
	"theta_watcher/internal/models"
)

// Fallback reads from Live and substitutes Sim when Live fails.
// Chains are never substituted: a made-up chain would look like a real
// candidate, so Chain errors reach the caller.
type Fallback struct {
	Live DataSource
	Sim  DataSource
}

func (f Fallback) Price(ctx context.Context, symbol string) (float64, error) {
	px, err := f.Live.Price(ctx, symbol)
	if err == nil && px > 0 {
		return px, nil
	}
	logger.Warnf("price for %s unavailable (%v), using simulated", symbol, err)
	metrics.MarketFallbacks.WithLabelValues("price").Inc()
	return f.Sim.Price(ctx, symbol)
}

func (f Fallback) Chain(ctx context.Context, symbol string) ([]models.OptionQuote, error) {
	quotes, err := f.Live.Chain(ctx, symbol)
	if err != nil {
		metrics.MarketFallbacks.WithLabelValues("chain").Inc()
		return nil, fmt.Errorf("%w: chain %s: %v", models.ErrDataUnavailable, symbol, err)
	}
	return quotes, nil
}

// IVRank returns nil instead of an error when Live fails.
func (f Fallback) IVRank(ctx context.Context, symbol string) (*float64, error) {
	ivr, err := f.Live.IVRank(ctx, symbol)
	if err != nil {
		logger.Warnf("iv rank for %s unavailable: %v", symbol, err)
		metrics.MarketFallbacks.WithLabelValues("ivr").Inc()
		return nil, nil
	}
	return ivr, nil
}
