package main

import (
	"context"
	"fmt"
	"time"

	"PreBurstSentinel/internal/collector"
	"PreBurstSentinel/internal/config"
	"PreBurstSentinel/internal/metrics"
	"PreBurstSentinel/internal/model"
	"PreBurstSentinel/internal/notifier"
	"PreBurstSentinel/internal/opportunity"
	"PreBurstSentinel/internal/recorder"
	"PreBurstSentinel/internal/scanner"
	"PreBurstSentinel/internal/state"

	"github.com/rs/zerolog/log"
)

// core is the scan pipeline shared by the long-running bot and one-off scans.
type core struct {
	timeframe model.Timeframe
	provider  *collector.BinanceProvider
	state     *state.Manager
	store     *opportunity.Store
	scanner   *scanner.Scanner
}

func newProvider(cfg *config.Config) *collector.BinanceProvider {
	return collector.NewBinanceProvider(collector.BinanceOptions{
		BaseURL:   cfg.Exchange.BaseURL,
		Timeout:   cfg.Exchange.Timeout,
		RateLimit: cfg.Exchange.RateLimit,
		Burst:     cfg.Exchange.Burst,
		Proxy:     cfg.Proxy,
	})
}

// serverNow reads the exchange clock once, falling back to local time.
func serverNow(ctx context.Context, p *collector.BinanceProvider) time.Time {
	now, err := p.ServerTime(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("server clock unavailable at startup, using local time")
		return time.Now().UTC()
	}
	return now
}

func openStateStore(ctx context.Context, cfg *config.Config) (state.Store, error) {
	switch cfg.State.Backend {
	case "redis":
		s, err := state.NewRedisStore(ctx, cfg.State.RedisAddr, cfg.State.RedisPassword, cfg.State.RedisDB, cfg.State.RedisKey)
		if err != nil {
			return nil, err
		}
		log.Info().Str("addr", cfg.State.RedisAddr).Str("key", cfg.State.RedisKey).Msg("watermark in redis")
		return s, nil
	default:
		s, err := state.NewFileStore(cfg.State.FilePath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.State.FilePath).Msg("watermark in file")
		return s, nil
	}
}

func openRecorder(cfg *config.Config) recorder.Recorder {
	if cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
	if err != nil {
		log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	return sr
}

// buildCore wires provider, watermark, opportunity store and scanner over store.
func buildCore(ctx context.Context, cfg *config.Config, store state.Store, n notifier.Notifier, rec recorder.Recorder, m *metrics.Metrics) (*core, error) {
	tf, err := cfg.Timeframe()
	if err != nil {
		return nil, err
	}
	provider := newProvider(cfg)
	if err := provider.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("provider", provider.Name()).Msg("exchange ping failed")
	} else {
		log.Info().Str("provider", provider.Name()).Msg("exchange reachable")
	}

	mgr, err := state.Open(ctx, store, cfg.Scan.Universe, tf, serverNow(ctx, provider))
	if err != nil {
		return nil, fmt.Errorf("open watermark: %w", err)
	}
	opps := opportunity.NewStore(mgr)
	col := collector.NewCollector(provider, tf, cfg.Params(), cfg.Scan.BarsLimit, cfg.Scan.RequestTimeout)
	sc := scanner.New(col, mgr, opps, scanner.Options{
		Notifier: n,
		Recorder: rec,
		Metrics:  m,
		Workers:  cfg.Scan.Workers,
	})
	return &core{timeframe: tf, provider: provider, state: mgr, store: opps, scanner: sc}, nil
}
