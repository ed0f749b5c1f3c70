package market

import (
	"context"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"

	"theta_watcher/internal/logger"
	"theta_watcher/internal/models"
)

// TradeStream is the part of the Alpaca stocks websocket client the cache uses.
type TradeStream interface {
	SubscribeToTrades(handler func(stream.Trade), symbols ...string) error
	Connect(ctx context.Context) error
}

// NewAlpacaTradeStream returns an IEX stocks client with SDK-level reconnects.
func NewAlpacaTradeStream(keyID, secretKey string) TradeStream {
	return stream.NewStocksClient(
		marketdata.IEX,
		stream.WithCredentials(keyID, secretKey),
		stream.WithReconnectSettings(10, 500*time.Millisecond),
	)
}

type streamedPrice struct {
	price float64
	at    time.Time
}

// StreamCache keeps the latest streamed trade price per symbol and answers
// Price from it while fresh. Everything else goes to Next.
type StreamCache struct {
	Next   DataSource
	MaxAge time.Duration

	client TradeStream
	now    func() time.Time

	mu     sync.RWMutex
	prices map[string]streamedPrice
}

// NewStreamCache wraps next with prices from client.
func NewStreamCache(next DataSource, client TradeStream, maxAge time.Duration) *StreamCache {
	return &StreamCache{
		Next:   next,
		MaxAge: maxAge,
		client: client,
		now:    time.Now,
		prices: make(map[string]streamedPrice),
	}
}

// Start subscribes to trades for symbols and keeps the websocket connected
// until ctx is done. It returns once the subscription is registered.
func (c *StreamCache) Start(ctx context.Context, symbols []string) error {
	if err := c.client.SubscribeToTrades(func(t stream.Trade) {
		c.Record(t.Symbol, t.Price)
	}, symbols...); err != nil {
		return err
	}
	go c.connectLoop(ctx)
	return nil
}

// connectLoop reconnects with exponential backoff once the SDK's own
// retries give up.
func (c *StreamCache) connectLoop(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = time.Minute

	for {
		logger.Infof("connecting trade stream")
		err := c.client.Connect(ctx)
		if ctx.Err() != nil {
			logger.Infof("trade stream stopped")
			return
		}
		if err != nil {
			logger.Warnf("trade stream closed: %v (retry in %s)", err, backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		} else {
			backoff = time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// Record stores a streamed trade price.
func (c *StreamCache) Record(symbol string, price float64) {
	if price <= 0 {
		return
	}
	c.mu.Lock()
	c.prices[symbol] = streamedPrice{price: price, at: c.now()}
	c.mu.Unlock()
}

// Price prefers a fresh streamed price over a REST round trip.
func (c *StreamCache) Price(ctx context.Context, symbol string) (float64, error) {
	c.mu.RLock()
	sp, ok := c.prices[symbol]
	c.mu.RUnlock()
	if ok && c.now().Sub(sp.at) <= c.MaxAge {
		return sp.price, nil
	}
	return c.Next.Price(ctx, symbol)
}

func (c *StreamCache) Chain(ctx context.Context, symbol string) ([]models.OptionQuote, error) {
	return c.Next.Chain(ctx, symbol)
}

func (c *StreamCache) IVRank(ctx context.Context, symbol string) (*float64, error) {
	return c.Next.IVRank(ctx, symbol)
}
