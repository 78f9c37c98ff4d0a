package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics represents the collection of all Prometheus metrics
type Metrics struct {
	ScansTotal   *prometheus.CounterVec
	ScanDuration prometheus.Histogram

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	Findings        *prometheus.GaugeVec
	BlockedTotal    prometheus.Counter
	WarningsEmitted prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all scan and cache metrics on a fresh
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depgate_scans_total",
			Help: "Total number of scans by result",
		},
		[]string{"result"},
	)

	m.ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "depgate_scan_duration_seconds",
			Help:    "Duration of full scan evaluations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "depgate_cache_hits_total",
			Help: "Total number of scan cache hits",
		},
	)

	m.CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "depgate_cache_misses_total",
			Help: "Total number of scan cache misses",
		},
	)

	m.Findings = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "depgate_findings",
			Help: "Number of findings in the most recent scan by priority tier",
		},
		[]string{"tier"},
	)

	m.BlockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "depgate_blocked_total",
			Help: "Total number of scans that ended in a block",
		},
	)

	m.WarningsEmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "depgate_warnings_total",
			Help: "Total number of data-integrity warnings emitted",
		},
	)

	m.registry.MustRegister(
		m.ScansTotal,
		m.ScanDuration,
		m.CacheHits,
		m.CacheMisses,
		m.Findings,
		m.BlockedTotal,
		m.WarningsEmitted,
	)

	return m
}

// ObserveScan records the outcome and duration of one scan.
func (m *Metrics) ObserveScan(result string, elapsed time.Duration) {
	m.ScansTotal.WithLabelValues(result).Inc()
	m.ScanDuration.Observe(elapsed.Seconds())
	if result == "block" {
		m.BlockedTotal.Inc()
	}
}

// ObserveCache records a cache lookup outcome.
func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// SetFindings records the per-tier finding counts of the most recent scan.
func (m *Metrics) SetFindings(byTier map[string]int) {
	m.Findings.Reset()
	for tier, n := range byTier {
		m.Findings.WithLabelValues(tier).Set(float64(n))
	}
}

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr. It blocks until the listener fails.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
