// Package scanner runs one evaluation cycle over the instrument universe.
package scanner

import (
	"context"
	"math"
	"time"

	"PreBurstSentinel/internal/collector"
	"PreBurstSentinel/internal/metrics"
	"PreBurstSentinel/internal/model"
	"PreBurstSentinel/internal/notifier"
	"PreBurstSentinel/internal/opportunity"
	"PreBurstSentinel/internal/recorder"
	"PreBurstSentinel/internal/state"
	"PreBurstSentinel/internal/strategy"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// CycleReport summarizes one scan cycle.
type CycleReport struct {
	Boundary time.Time     `json:"boundary"`
	Scanned  int           `json:"scanned"`
	Failed   int           `json:"failed"`
	Created  int           `json:"created"`
	Closed   int           `json:"closed"`
	Duration time.Duration `json:"duration"`
}

// Scanner evaluates every instrument of the universe against the last closed bar.
type Scanner struct {
	collector *collector.Collector
	state     *state.Manager
	store     *opportunity.Store
	notifier  notifier.Notifier
	recorder  recorder.Recorder
	metrics   *metrics.Metrics
	workers   int
}

// Options carries the optional collaborators of a Scanner.
type Options struct {
	Notifier notifier.Notifier
	Recorder recorder.Recorder
	Metrics  *metrics.Metrics
	Workers  int
}

// New creates a Scanner.
func New(c *collector.Collector, m *state.Manager, store *opportunity.Store, opts Options) *Scanner {
	if opts.Notifier == nil {
		opts.Notifier = notifier.Nop{}
	}
	if opts.Recorder == nil {
		opts.Recorder = recorder.NewNoopRecorder()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Scanner{
		collector: c,
		state:     m,
		store:     store,
		notifier:  opts.Notifier,
		recorder:  opts.Recorder,
		metrics:   opts.Metrics,
		workers:   opts.Workers,
	}
}

type fetchResult struct {
	series *model.Series
	err    error
}

// Scan runs one cycle for the bar boundary. at is the authoritative time the cycle runs at and
// stamps new snapshots. One instrument failing never aborts the others.
func (s *Scanner) Scan(ctx context.Context, boundary, at time.Time) CycleReport {
	start := time.Now()
	wm := s.state.Snapshot()
	universe := wm.Universe
	report := CycleReport{Boundary: boundary}

	results := make([]fetchResult, len(universe))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, pair := range universe {
		g.Go(func() error {
			series, err := s.collector.Collect(gctx, pair, boundary)
			results[i] = fetchResult{series: series, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, pair := range universe {
		res := results[i]
		if res.err != nil {
			report.Failed++
			s.metrics.PairFailed(pair)
			log.Warn().Err(res.err).Str("pair", pair).Time("boundary", boundary).Msg("skipping pair")
			continue
		}
		events, err := s.evaluate(ctx, pair, res.series, boundary, at)
		if err != nil {
			report.Failed++
			s.metrics.PairFailed(pair)
			log.Error().Err(err).Str("pair", pair).Msg("reconcile opportunity")
			continue
		}
		report.Scanned++
		for _, ev := range events {
			switch ev.Kind {
			case model.EventCreated:
				report.Created++
			case model.EventClosed:
				report.Closed++
			}
			s.publish(ev)
		}
	}

	report.Duration = time.Since(start)
	open := len(s.state.Snapshot().Opportunities)
	s.metrics.ObserveCycle(report.Duration, open)
	if err := s.recorder.RecordCycle(&recorder.CycleRecord{
		Boundary:  boundary,
		StartedAt: start,
		Duration:  report.Duration,
		Scanned:   report.Scanned,
		Failed:    report.Failed,
		Created:   report.Created,
		Closed:    report.Closed,
	}); err != nil {
		log.Warn().Err(err).Msg("record cycle")
	}
	log.Info().Time("boundary", boundary).Int("scanned", report.Scanned).Int("failed", report.Failed).
		Int("created", report.Created).Int("closed", report.Closed).Dur("duration", report.Duration).
		Msg("scan cycle finished")
	return report
}

func (s *Scanner) evaluate(ctx context.Context, pair string, series *model.Series, boundary, at time.Time) ([]model.Event, error) {
	cci := math.NaN()
	if last, ok := series.Last(); ok {
		cci = last.CCI
	}
	sig := strategy.Detect(series, at)
	if sig != nil && s.opens(pair, cci) {
		price, err := s.collector.LivePrice(ctx, pair)
		if err != nil {
			log.Warn().Err(err).Str("pair", pair).Msg("live price unavailable, using last close")
		} else {
			sig = strategy.WithPrice(sig, price)
		}
	}
	return s.store.Reconcile(ctx, pair, cci, sig, boundary)
}

// opens reports whether a detection for pair would open a new record this cycle.
func (s *Scanner) opens(pair string, cci float64) bool {
	active, ok := s.state.Snapshot().Opportunities[pair]
	return !ok || strategy.ShouldClose(active.CCI, cci)
}

func (s *Scanner) publish(ev model.Event) {
	s.metrics.Event(string(ev.Kind))
	if err := s.recorder.RecordEvent(&ev); err != nil {
		log.Warn().Err(err).Str("pair", ev.Pair).Msg("record event")
	}
	log.Info().Str("pair", ev.Pair).Str("kind", string(ev.Kind)).Str("id", ev.Opportunity.ID).
		Float64("cci", ev.Opportunity.CCI).Msg("opportunity event")
	s.notifier.Notify(ev)
}
