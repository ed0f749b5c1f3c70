package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"theta_watcher/internal/models"
	"theta_watcher/internal/selector"
)

// MockSource is a scripted DataSource.
type MockSource struct {
	mu       sync.Mutex
	Prices   map[string]float64
	IVR      *float64
	Err      error
	Quotes   []models.OptionQuote
	Requests []string
}

func (m *MockSource) Price(_ context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, "price:"+symbol)
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Prices[symbol], nil
}

func (m *MockSource) Chain(_ context.Context, symbol string) ([]models.OptionQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, "chain:"+symbol)
	return m.Quotes, m.Err
}

func (m *MockSource) IVRank(_ context.Context, symbol string) (*float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, "ivr:"+symbol)
	return m.IVR, m.Err
}

func TestFallback_Price(t *testing.T) {
	ctx := context.Background()
	live := &MockSource{Prices: map[string]float64{"AAPL": 190.5}}
	sim := &MockSource{Prices: map[string]float64{"AAPL": 42, "TSLA": 99}}
	f := Fallback{Live: live, Sim: sim}

	px, err := f.Price(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 190.5, px)

	// zero from live counts as unavailable
	px, err = f.Price(ctx, "TSLA")
	require.NoError(t, err)
	assert.Equal(t, 99.0, px)

	live.Err = errors.New("timeout")
	px, err = f.Price(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 42.0, px)
}

func TestFallback_ChainAndIVR(t *testing.T) {
	ctx := context.Background()
	live := &MockSource{Err: errors.New("boom")}
	f := Fallback{Live: live, Sim: NewSimulated(1)}

	_, err := f.Chain(ctx, "SPY")
	assert.ErrorIs(t, err, models.ErrDataUnavailable)

	ivr, err := f.IVRank(ctx, "SPY")
	assert.NoError(t, err)
	assert.Nil(t, ivr)

	live.Err = nil
	live.IVR = models.Float(72)
	ivr, err = f.IVRank(ctx, "SPY")
	require.NoError(t, err)
	assert.Equal(t, 72.0, *ivr)
}

func TestLimited_FailsWhenContextExpires(t *testing.T) {
	src := &MockSource{Prices: map[string]float64{"SPY": 500}}
	l := &Limited{Source: src, Limiter: rate.NewLimiter(rate.Every(time.Hour), 1)}

	px, err := l.Price(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, 500.0, px)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Price(ctx, "SPY")
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
	assert.Len(t, src.Requests, 1)
}

func TestSimulated_ChainFeedsSelector(t *testing.T) {
	sim := NewSimulated(7)
	ctx := context.Background()

	px, _ := sim.Price(ctx, "AAPL")
	assert.GreaterOrEqual(t, px, 40.0)
	assert.Less(t, px, 300.0)

	ivr, _ := sim.IVRank(ctx, "AAPL")
	require.NotNil(t, ivr)
	assert.GreaterOrEqual(t, *ivr, 30.0)
	assert.LessOrEqual(t, *ivr, 80.0)

	quotes, err := sim.Chain(ctx, "AAPL")
	require.NoError(t, err)
	res := selector.Select(quotes, selector.Window{DeltaMin: 0.20, DeltaMax: 0.30, DTEMin: 7, DTEMax: 14}, time.Now().UTC())
	require.True(t, res.Found)
	fill, ok := res.Pick.Fill(0.02)
	assert.True(t, ok)
	assert.Greater(t, fill, 0.0)
}

func TestSimulated_ChainGoesThroughAdapter(t *testing.T) {
	quotes, err := NewSimulated(3).Chain(context.Background(), "MSFT")
	require.NoError(t, err)
	require.Len(t, quotes, 24)

	for _, q := range quotes {
		assert.Equal(t, "MSFT", q.Underlying)
		assert.Equal(t, "put", q.Type)
		require.NotNil(t, q.Strike)
		require.NotNil(t, q.Delta)
		require.NotNil(t, q.DTE)
	}
	// document order: nearest expiration first, strikes walking down
	assert.Equal(t, 7.0, *quotes[0].DTE)
	assert.Equal(t, 21.0, *quotes[23].DTE)
	assert.Greater(t, *quotes[0].Strike, *quotes[1].Strike)
	assert.Equal(t, time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02"), quotes[0].Expiration)
}

type fakeStream struct {
	handler   func(stream.Trade)
	symbols   []string
	connected chan struct{}
}

func (f *fakeStream) SubscribeToTrades(h func(stream.Trade), symbols ...string) error {
	f.handler = h
	f.symbols = symbols
	return nil
}

func (f *fakeStream) Connect(ctx context.Context) error {
	select {
	case f.connected <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestStreamCache_PrefersFreshPrices(t *testing.T) {
	next := &MockSource{Prices: map[string]float64{"AAPL": 180}}
	fs := &fakeStream{connected: make(chan struct{}, 1)}
	clock := time.Date(2026, 10, 15, 14, 0, 0, 0, time.UTC)

	c := NewStreamCache(next, fs, 30*time.Second)
	c.now = func() time.Time { return clock }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx, []string{"AAPL", "SPY"}))
	assert.Equal(t, []string{"AAPL", "SPY"}, fs.symbols)

	select {
	case <-fs.connected:
	case <-time.After(time.Second):
		t.Fatal("stream never connected")
	}

	fs.handler(stream.Trade{Symbol: "AAPL", Price: 191.25})
	px, err := c.Price(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 191.25, px)

	clock = clock.Add(time.Minute)
	px, err = c.Price(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 180.0, px, "stale stream price falls through")
}
