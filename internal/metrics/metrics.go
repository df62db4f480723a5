package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors of the scanner. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	ScanCycles        prometheus.Counter
	ScanDuration      prometheus.Histogram
	PairFailures      *prometheus.CounterVec // labels: pair
	Events            *prometheus.CounterVec // labels: kind
	OpenOpportunities prometheus.Gauge
	NextBoundary      prometheus.Gauge // unix seconds
	ClockDegraded     prometheus.Gauge // 0=exchange clock, 1=local fallback
	NotifyDropped     prometheus.Counter
	NotifyFailed      prometheus.Counter
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ScanCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "preburst_scan_cycles_total",
			Help: "Completed scan cycles",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "preburst_scan_duration_seconds",
			Help:    "Wall time of one scan cycle over the universe",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		PairFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "preburst_pair_failures_total",
			Help: "Instruments skipped in a cycle because of fetch or compute errors",
		}, []string{"pair"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "preburst_events_total",
			Help: "Opportunity lifecycle events",
		}, []string{"kind"}),
		OpenOpportunities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "preburst_open_opportunities",
			Help: "Currently open opportunity records",
		}),
		NextBoundary: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "preburst_next_boundary_timestamp_seconds",
			Help: "Next bar boundary the synchronizer waits for",
		}),
		ClockDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "preburst_clock_degraded",
			Help: "Whether the synchronizer fell back to the local clock",
		}),
		NotifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "preburst_notify_dropped_total",
			Help: "Notifications dropped because the dispatch buffer was full",
		}),
		NotifyFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "preburst_notify_failed_total",
			Help: "Notifications that exhausted their retries",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ScanCycles,
		m.ScanDuration,
		m.PairFailures,
		m.Events,
		m.OpenOpportunities,
		m.NextBoundary,
		m.ClockDegraded,
		m.NotifyDropped,
		m.NotifyFailed,
	)
	return m
}

// ObserveCycle records a finished scan cycle.
func (m *Metrics) ObserveCycle(d time.Duration, open int) {
	if m == nil {
		return
	}
	m.ScanCycles.Inc()
	m.ScanDuration.Observe(d.Seconds())
	m.OpenOpportunities.Set(float64(open))
}

// PairFailed counts one skipped instrument.
func (m *Metrics) PairFailed(pair string) {
	if m == nil {
		return
	}
	m.PairFailures.WithLabelValues(pair).Inc()
}

// Event counts one lifecycle event.
func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind).Inc()
}

// SetNextBoundary publishes the boundary being waited for.
func (m *Metrics) SetNextBoundary(t time.Time) {
	if m == nil {
		return
	}
	m.NextBoundary.Set(float64(t.Unix()))
}

// SetClockDegraded flags the local clock fallback.
func (m *Metrics) SetClockDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.ClockDegraded.Set(1)
		return
	}
	m.ClockDegraded.Set(0)
}

// NotifyDrop counts a dropped notification.
func (m *Metrics) NotifyDrop() {
	if m == nil {
		return
	}
	m.NotifyDropped.Inc()
}

// NotifyFailure counts a notification that could not be delivered.
func (m *Metrics) NotifyFailure() {
	if m == nil {
		return
	}
	m.NotifyFailed.Inc()
}
