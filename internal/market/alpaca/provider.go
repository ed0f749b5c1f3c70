// Package alpaca reads prices and option chains from Alpaca market data
// and submits short put orders to the Alpaca trading API.
package alpaca

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"theta_watcher/internal/chain"
	"theta_watcher/internal/market"
	"theta_watcher/internal/models"
)

// Provider talks to Alpaca. It is both a market.DataSource and a market.Broker.
type Provider struct {
	mdClient    *marketdata.Client
	tradeClient *alpaca.Client
}

var (
	_ market.DataSource   = (*Provider)(nil)
	_ market.Broker       = (*Provider)(nil)
	_ market.OrderTracker = (*Provider)(nil)
)

// Options configures NewProvider. Empty credentials make the SDK fall back
// to the APCA_* environment variables.
type Options struct {
	KeyID     string
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

// NewProvider builds both SDK clients with a bounded HTTP timeout.
func NewProvider(opts Options) *Provider {
	httpClient := &http.Client{Timeout: opts.Timeout}
	return &Provider{
		mdClient: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:     opts.KeyID,
			APISecret:  opts.SecretKey,
			HTTPClient: httpClient,
		}),
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:     opts.KeyID,
			APISecret:  opts.SecretKey,
			BaseURL:    opts.BaseURL,
			HTTPClient: httpClient,
		}),
	}
}

// Price returns the latest trade price.
func (p *Provider) Price(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	trade, err := p.mdClient.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return 0, fmt.Errorf("latest trade %s: %w", symbol, err)
	}
	if trade == nil || trade.Price <= 0 {
		return 0, fmt.Errorf("%w: no trade for %s", models.ErrDataUnavailable, symbol)
	}
	return trade.Price, nil
}

// Chain fetches option snapshots for the underlying and converts them.
func (p *Provider) Chain(ctx context.Context, symbol string) ([]models.OptionQuote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snaps, err := p.mdClient.GetOptionChain(symbol, marketdata.GetOptionChainRequest{})
	if err != nil {
		return nil, fmt.Errorf("option chain %s: %w", symbol, err)
	}
	quotes := QuotesFromSnapshots(symbol, snaps)
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: empty chain for %s", models.ErrDataUnavailable, symbol)
	}
	return quotes, nil
}

// IVRank always reports nil: Alpaca publishes implied volatility per
// contract but no rank against the past year.
func (p *Provider) IVRank(_ context.Context, _ string) (*float64, error) {
	return nil, nil
}

// QuotesFromSnapshots converts Alpaca snapshots keyed by OCC symbol.
// Output is sorted by contract symbol so selection ties are stable.
func QuotesFromSnapshots(underlying string, snaps map[string]marketdata.OptionSnapshot) []models.OptionQuote {
	symbols := make([]string, 0, len(snaps))
	for s := range snaps {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	out := make([]models.OptionQuote, 0, len(symbols))
	for _, sym := range symbols {
		contract, err := chain.ParseOCC(sym)
		if err != nil {
			continue
		}
		snap := snaps[sym]
		q := models.OptionQuote{
			Symbol:     sym,
			Underlying: underlying,
			Type:       contract.Type,
			Strike:     models.Float(contract.Strike),
			Expiration: contract.Expiration.Format("2006-01-02"),
		}
		if snap.Greeks != nil {
			q.Delta = models.Float(snap.Greeks.Delta)
		}
		if lq := snap.LatestQuote; lq != nil {
			if lq.BidPrice > 0 {
				q.Bid = models.Float(lq.BidPrice)
			}
			if lq.AskPrice > 0 {
				q.Ask = models.Float(lq.AskPrice)
			}
		}
		if lt := snap.LatestTrade; lt != nil && lt.Price > 0 {
			q.Mark = models.Float(lt.Price)
		}
		out = append(out, q)
	}
	return out
}

// SubmitShortPut sells to open the position's contract at a day limit.
// Dry runs are validated locally and never reach the API.
func (p *Provider) SubmitShortPut(ctx context.Context, req models.OrderRequest) (models.OrderReceipt, error) {
	if req.Position.OptionSymbol == "" {
		return models.OrderReceipt{}, models.ErrMissingContract
	}
	if req.Quantity < 1 || req.LimitPrice <= 0 {
		return models.OrderReceipt{}, fmt.Errorf("%w: qty %d limit %.2f", models.ErrInvalidInput, req.Quantity, req.LimitPrice)
	}
	if req.DryRun {
		return models.OrderReceipt{Symbol: req.Position.OptionSymbol, Status: "dry_run", SubmittedAt: time.Now()}, nil
	}
	if err := ctx.Err(); err != nil {
		return models.OrderReceipt{}, err
	}

	qty := decimal.NewFromInt(int64(req.Quantity))
	limit := decimal.NewFromFloat(req.LimitPrice).Round(2)
	o, err := p.tradeClient.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      req.Position.OptionSymbol,
		Qty:         &qty,
		Side:        alpaca.Sell,
		Type:        alpaca.Limit,
		TimeInForce: alpaca.Day,
		LimitPrice:  &limit,
	})
	if err != nil {
		return models.OrderReceipt{}, err
	}
	return models.OrderReceipt{
		ID:          o.ID,
		Symbol:      o.Symbol,
		Status:      o.Status,
		SubmittedAt: o.SubmittedAt,
	}, nil
}

// CancelOrder cancels a working order by id.
func (p *Provider) CancelOrder(orderID string) error {
	return p.tradeClient.CancelOrder(orderID)
}

// OrderStatus returns the broker's status string for an order.
func (p *Provider) OrderStatus(orderID string) (string, error) {
	o, err := p.tradeClient.GetOrder(orderID)
	if err != nil {
		return "", err
	}
	return o.Status, nil
}
