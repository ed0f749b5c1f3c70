package market

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"theta_watcher/internal/chain"
	"theta_watcher/internal/models"
)

// Simulated makes up plausible prices, IV ranks and put chains.
// It never fails and is safe for concurrent use.
type Simulated struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewSimulated returns a Simulated source seeded with seed.
func NewSimulated(seed int64) *Simulated {
	return &Simulated{rand: rand.New(rand.NewSource(seed))}
}

// Uniform draws from [lo, hi).
func (s *Simulated) Uniform(lo, hi float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rand.Float64()*(hi-lo)
}

// Intn draws an integer from [lo, hi].
func (s *Simulated) Intn(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rand.Intn(hi-lo+1)
}

// Price returns a uniform price between 40 and 300.
func (s *Simulated) Price(_ context.Context, _ string) (float64, error) {
	return models.Round(s.Uniform(40, 300), 2), nil
}

// IVRank returns a whole number between 30 and 80.
func (s *Simulated) IVRank(_ context.Context, _ string) (*float64, error) {
	return models.Float(float64(s.Intn(30, 80))), nil
}

type simStrike struct {
	Strike     float64 `json:"strike-price"`
	Type       string  `json:"option-type"`
	Expiration string  `json:"expiration-date"`
	Delta      float64 `json:"delta"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	DTE        float64 `json:"dte"`
}

type simExpiration struct {
	Expiration string      `json:"expiration-date"`
	Strikes    []simStrike `json:"strikes"`
}

type simChain struct {
	Underlying string          `json:"underlying-symbol"`
	Items      []simExpiration `json:"items"`
}

// Chain synthesizes weekly puts over the next three expirations, strikes
// stepping down from the money in 2.5% increments. The chain is rendered in
// the nested expiration/strikes layout broker APIs use and read back through
// the chain adapter like any other payload.
func (s *Simulated) Chain(ctx context.Context, symbol string) ([]models.OptionQuote, error) {
	price, _ := s.Price(ctx, symbol)
	today := time.Now().UTC()

	doc := simChain{Underlying: symbol}
	for week := 1; week <= 3; week++ {
		exp := today.AddDate(0, 0, week*7).Format("2006-01-02")
		item := simExpiration{Expiration: exp}
		for step := 1; step <= 8; step++ {
			delta := -models.Round(0.5-0.06*float64(step), 2)
			mid := models.Round(price*0.004*float64(week)*(-delta)*4, 2)
			spread := models.Round(mid*0.05+0.01, 2)
			item.Strikes = append(item.Strikes, simStrike{
				Strike:     models.Round(price*(1-0.025*float64(step)), 2),
				Type:       "P",
				Expiration: exp,
				Delta:      delta,
				Bid:        models.Round(mid-spread, 2),
				Ask:        models.Round(mid+spread, 2),
				DTE:        float64(week * 7),
			})
		}
		doc.Items = append(doc.Items, item)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("render simulated chain: %w", err)
	}
	quotes, err := chain.Decode(raw)
	if err != nil {
		return nil, err
	}
	for i := range quotes {
		quotes[i].Underlying = symbol
	}
	return quotes, nil
}
