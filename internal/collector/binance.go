package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PreBurstSentinel/internal/model"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultBinanceURL is the public spot REST endpoint.
const DefaultBinanceURL = "https://api.binance.com"

// maxKlineLimit is the largest page the klines endpoint accepts.
const maxKlineLimit = 1000

// ErrBreakerOpen is returned while the circuit breaker rejects requests.
var ErrBreakerOpen = errors.New("exchange circuit breaker open")

// BinanceOptions configures a BinanceProvider.
type BinanceOptions struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
	Proxy     string
}

// BinanceProvider implements Provider against the Binance spot public REST API.
type BinanceProvider struct {
	BaseURL string
	Client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewBinanceProvider creates a provider with optional proxy support, a token bucket limiter
// and a circuit breaker that trips after consecutive failures.
func NewBinanceProvider(opts BinanceOptions) *BinanceProvider {
	transport := &http.Transport{}
	if opts.Proxy != "" {
		if u, err := url.Parse(opts.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBinanceURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	st := gobreaker.Settings{
		Name:     "binance",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BinanceProvider{
		BaseURL: strings.TrimRight(opts.BaseURL, "/"),
		Client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

func (p *BinanceProvider) Name() string { return "binance" }

// Ping checks connectivity with the exchange.
func (p *BinanceProvider) Ping(ctx context.Context) error {
	_, err := p.get(ctx, "/api/v3/ping", nil)
	return err
}

// ServerTime returns the exchange clock, which can differ from local time.
func (p *BinanceProvider) ServerTime(ctx context.Context) (time.Time, error) {
	body, err := p.get(ctx, "/api/v3/time", nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("server time: %w", err)
	}
	var result struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return time.Time{}, fmt.Errorf("decode server time: %w", err)
	}
	return time.UnixMilli(result.ServerTime).UTC(), nil
}

// Price returns the latest traded price for pair.
func (p *BinanceProvider) Price(ctx context.Context, pair string) (decimal.Decimal, error) {
	params := url.Values{"symbol": {strings.ToUpper(pair)}}
	body, err := p.get(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price %s: %w", pair, err)
	}
	var result struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("decode price %s: %w", pair, err)
	}
	return result.Price, nil
}

// Bars returns the most recent limit klines for pair, oldest first.
func (p *BinanceProvider) Bars(ctx context.Context, pair string, tf model.Timeframe, limit int) ([]model.Bar, error) {
	if limit <= 0 || limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	params := url.Values{
		"symbol":   {strings.ToUpper(pair)},
		"interval": {tf.String()},
		"limit":    {strconv.Itoa(limit)},
	}
	body, err := p.get(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, fmt.Errorf("klines %s: %w", pair, err)
	}
	bars, err := decodeKlines(body)
	if err != nil {
		return nil, fmt.Errorf("decode klines %s: %w", pair, err)
	}
	if err := model.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("klines %s: %w", pair, err)
	}
	return bars, nil
}

// decodeKlines parses the positional kline arrays:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, trades, takerBase, takerQuote, ignore]
func decodeKlines(body []byte) ([]model.Bar, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	bars := make([]model.Bar, 0, len(rows))
	for i, r := range rows {
		if len(r) < 11 {
			return nil, fmt.Errorf("kline %d: %d fields", i, len(r))
		}
		var openMs, closeMs int64
		var b model.Bar
		targets := []any{
			&openMs, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
			&closeMs, &b.QuoteVolume, &b.TradeCount, &b.TakerBuyVolume, &b.TakerBuyQuoteVolume,
		}
		for j, target := range targets {
			if err := json.Unmarshal(r[j], target); err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j, err)
			}
		}
		b.OpenTime = time.UnixMilli(openMs).UTC()
		b.CloseTime = time.UnixMilli(closeMs).UTC()
		bars = append(bars, b)
	}
	return bars, nil
}

func (p *BinanceProvider) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	endpoint := p.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	out, err := p.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.Client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrBreakerOpen, err)
		}
		return nil, err
	}
	return out.([]byte), nil
}
