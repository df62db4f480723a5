package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PreBurstSentinel/internal/model"
	"PreBurstSentinel/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const klinesJSON = `[
 [1712016000000,"64000.10","64100.00","63900.00","64050.50","12.5",1712019599999,"800000.1",1500,"6.1","390000.2","0"],
 [1712019600000,"64050.50","64200.00","64000.00","64150.00","10.0",1712023199999,"641500.0",1200,"5.0","320000.0","0"]
]`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "480", r.URL.Query().Get("limit"))
		fmt.Fprint(w, klinesJSON)
	})
	mux.HandleFunc("/api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
			return
		}
		fmt.Fprint(w, `{"symbol":"BTCUSDT","price":"64123.45000000"}`)
	})
	mux.HandleFunc("/api/v3/time", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"serverTime":1712023200123}`)
	})
	mux.HandleFunc("/api/v3/ping", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBinanceProvider_Bars(t *testing.T) {
	srv := newTestServer(t)
	p := NewBinanceProvider(BinanceOptions{BaseURL: srv.URL, RateLimit: 100, Burst: 10})

	bars, err := p.Bars(context.Background(), "btcusdt", "1h", 480)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	b := bars[0]
	assert.Equal(t, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), b.OpenTime)
	assert.True(t, b.Close.Equal(decimal.RequireFromString("64050.5")))
	assert.True(t, b.High.Equal(decimal.RequireFromString("64100")))
	assert.Equal(t, int64(1500), b.TradeCount)
	assert.True(t, b.TakerBuyQuoteVolume.Equal(decimal.RequireFromString("390000.2")))
	assert.True(t, bars[1].OpenTime.After(b.OpenTime))
}

func TestBinanceProvider_PriceAndTime(t *testing.T) {
	srv := newTestServer(t)
	p := NewBinanceProvider(BinanceOptions{BaseURL: srv.URL, RateLimit: 100, Burst: 10})
	ctx := context.Background()

	price, err := p.Price(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("64123.45")))

	_, err = p.Price(ctx, "NOPE")
	assert.Error(t, err)

	now, err := p.ServerTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1712023200123).UTC(), now)

	assert.NoError(t, p.Ping(ctx))
}

func TestBinanceProvider_BreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	p := NewBinanceProvider(BinanceOptions{BaseURL: srv.URL, RateLimit: 1000, Burst: 100})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := p.ServerTime(ctx)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrBreakerOpen), "attempt %d", i)
	}
	_, err := p.ServerTime(ctx)
	assert.True(t, errors.Is(err, ErrBreakerOpen))
}

func TestDecodeKlines_Malformed(t *testing.T) {
	_, err := decodeKlines([]byte(`[[1,"2"]]`))
	assert.Error(t, err)
	_, err = decodeKlines([]byte(`{}`))
	assert.Error(t, err)
}

func hourlyBars(start time.Time, n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		p := decimal.NewFromInt(int64(100 + i%3))
		open := start.Add(time.Duration(i) * time.Hour)
		bars[i] = model.Bar{OpenTime: open, CloseTime: open.Add(time.Hour - time.Millisecond), Open: p, High: p.Add(decimal.NewFromInt(1)), Low: p.Sub(decimal.NewFromInt(1)), Close: p}
	}
	return bars
}

func TestCollector_DropsUnclosedBar(t *testing.T) {
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	mock := &MockProvider{BarsBy: map[string][]model.Bar{"BTCUSDT": hourlyBars(start, 10)}}
	c := NewCollector(mock, "1h", strategy.Params{BBPeriod: 3, BBMultiplier: 2, CCIPeriod: 3, RSIPeriod: 3, SlopeWindow: 2, SpanThreshold: 0.025}, 0, time.Second)
	assert.Equal(t, 12, c.Limit)

	boundary := start.Add(9 * time.Hour) // bar 9 is still forming
	series, err := c.Collect(context.Background(), "BTCUSDT", boundary)
	require.NoError(t, err)
	require.Len(t, series.Rows, 9)
	last, _ := series.Last()
	assert.True(t, last.Bar.OpenTime.Before(boundary))
}

func TestCollector_Timeout(t *testing.T) {
	mock := &MockProvider{Delay: time.Second}
	c := NewCollector(mock, "1h", strategy.DefaultParams(), 0, 20*time.Millisecond)

	_, err := c.Collect(context.Background(), "BTCUSDT", time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCollector_ProviderError(t *testing.T) {
	mock := &MockProvider{ErrBy: map[string]error{"ETHUSDT": errors.New("boom")}}
	c := NewCollector(mock, "1h", strategy.DefaultParams(), 0, time.Second)

	_, err := c.Collect(context.Background(), "ETHUSDT", time.Now())
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 1, mock.Requests("ETHUSDT"))
}
