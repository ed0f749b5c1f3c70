//go:build integration

package alpaca

import (
	"context"
	"os"
	"testing"
	"time"

	"theta_watcher/internal/models"
	"theta_watcher/internal/selector"
)

func setupProvider(t *testing.T) *Provider {
	key := os.Getenv("TEST_APCA_API_KEY_ID")
	secret := os.Getenv("TEST_APCA_API_SECRET_KEY")
	url := os.Getenv("TEST_APCA_API_BASE_URL")

	if key == "" || secret == "" {
		t.Skip("Skipping integration test: TEST_APCA credentials not set")
	}
	if url == "" {
		url = "https://paper-api.alpaca.markets"
	}
	return NewProvider(Options{KeyID: key, SecretKey: secret, BaseURL: url, Timeout: 12 * time.Second})
}

func TestIntegration_ChainSelectsShortPut(t *testing.T) {
	p := setupProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	price, err := p.Price(ctx, "SPY")
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	t.Logf("SPY @ %.2f", price)

	quotes, err := p.Chain(ctx, "SPY")
	if err != nil {
		t.Fatalf("Chain failed: %v", err)
	}
	res := selector.Select(quotes, selector.Window{DeltaMin: 0.20, DeltaMax: 0.30, DTEMin: 7, DTEMax: 14}, time.Now())
	if !res.Found {
		t.Skip("no contract in window today")
	}
	t.Logf("picked %s strike %.2f dte %d delta %.2f mid %.2f", res.Pick.Symbol, res.Pick.Strike, res.Pick.DTE, res.Pick.Delta, res.Pick.Mid)
}

func TestIntegration_ShortPutLimitOrder(t *testing.T) {
	p := setupProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	quotes, err := p.Chain(ctx, "SPY")
	if err != nil {
		t.Fatalf("Chain failed: %v", err)
	}
	res := selector.Select(quotes, selector.Window{DeltaMin: 0.05, DeltaMax: 0.15, DTEMin: 7, DTEMax: 30}, time.Now())
	if !res.Found {
		t.Skip("no far OTM put available")
	}

	// Far above the market so it rests unfilled, then gets cancelled.
	rcpt, err := p.SubmitShortPut(ctx, models.OrderRequest{
		Position:   models.Position{OptionSymbol: res.Pick.Symbol},
		Quantity:   1,
		LimitPrice: res.Pick.Mid*3 + 1,
	})
	if err != nil {
		t.Fatalf("SubmitShortPut failed: %v", err)
	}
	t.Logf("Placed order %s (%s)", rcpt.ID, rcpt.Status)

	status, err := p.OrderStatus(rcpt.ID)
	if err != nil {
		t.Fatalf("OrderStatus failed: %v", err)
	}
	if status == "filled" {
		t.Errorf("limit far above market should not fill, got %s", status)
	}
	if err := p.CancelOrder(rcpt.ID); err != nil {
		t.Errorf("CancelOrder failed: %v", err)
	}
}
