package market

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"theta_watcher/internal/models"
)

// Limited throttles calls into Source with a token bucket. A call that
// cannot get a token before ctx expires fails as data unavailable.
type Limited struct {
	Source  DataSource
	Limiter *rate.Limiter
}

// NewLimited allows perSecond calls per second with a burst of the same size.
func NewLimited(src DataSource, perSecond float64) *Limited {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Limited{Source: src, Limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limited) wait(ctx context.Context) error {
	if err := l.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit: %v", models.ErrDataUnavailable, err)
	}
	return nil
}

func (l *Limited) Price(ctx context.Context, symbol string) (float64, error) {
	if err := l.wait(ctx); err != nil {
		return 0, err
	}
	return l.Source.Price(ctx, symbol)
}

func (l *Limited) Chain(ctx context.Context, symbol string) ([]models.OptionQuote, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.Source.Chain(ctx, symbol)
}

func (l *Limited) IVRank(ctx context.Context, symbol string) (*float64, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.Source.IVRank(ctx, symbol)
}
