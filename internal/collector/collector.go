package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PreBurstSentinel/internal/model"
	"PreBurstSentinel/internal/strategy"

	"github.com/shopspring/decimal"
)

// MockProvider returns controllable fixed data for development and testing.
type MockProvider struct {
	mu       sync.Mutex
	BarsBy   map[string][]model.Bar
	PriceBy  map[string]decimal.Decimal
	ErrBy    map[string]error
	Now      func() time.Time
	TimeErr  error
	Delay    time.Duration
	DelayBy  map[string]time.Duration // overrides Delay per pair
	requests map[string]int
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Bars(ctx context.Context, pair string, _ model.Timeframe, limit int) ([]model.Bar, error) {
	m.mu.Lock()
	if m.requests == nil {
		m.requests = make(map[string]int)
	}
	m.requests[pair]++
	err := m.ErrBy[pair]
	bars := m.BarsBy[pair]
	delay := m.Delay
	if d, ok := m.DelayBy[pair]; ok {
		delay = d
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (m *MockProvider) Price(_ context.Context, pair string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.PriceBy[pair]; ok {
		return p, nil
	}
	return decimal.Zero, fmt.Errorf("no price for %s", pair)
}

func (m *MockProvider) ServerTime(_ context.Context) (time.Time, error) {
	if m.TimeErr != nil {
		return time.Time{}, m.TimeErr
	}
	if m.Now != nil {
		return m.Now(), nil
	}
	return time.Now().UTC(), nil
}

// Requests returns how many bar requests were made for pair.
func (m *MockProvider) Requests(pair string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[pair]
}

// Collector fetches bars for one instrument and runs the indicator pipeline over them.
type Collector struct {
	Provider  Provider
	Timeframe model.Timeframe
	Limit     int
	Timeout   time.Duration
	Pipeline  strategy.Pipeline
}

// NewCollector creates a new Collector. A non-positive limit requests three times the
// pipeline lookback so the longest window has settled.
func NewCollector(provider Provider, tf model.Timeframe, params strategy.Params, limit int, timeout time.Duration) *Collector {
	if limit <= 0 {
		limit = 3 * params.Lookback()
	}
	return &Collector{
		Provider:  provider,
		Timeframe: tf,
		Limit:     limit,
		Timeout:   timeout,
		Pipeline:  strategy.NewPipeline(params),
	}
}

// Collect fetches the bars closed before boundary and computes the derived series.
func (c *Collector) Collect(ctx context.Context, pair string, boundary time.Time) (*model.Series, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	bars, err := c.Provider.Bars(ctx, pair, c.Timeframe, c.Limit)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	bars = model.Closed(bars, boundary)
	series, err := c.Pipeline(pair, bars)
	if err != nil {
		return nil, fmt.Errorf("compute indicators: %w", err)
	}
	return series, nil
}

// LivePrice fetches the current price of pair.
func (c *Collector) LivePrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.Provider.Price(ctx, pair)
}

func (c *Collector) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return context.WithCancel(ctx)
}
