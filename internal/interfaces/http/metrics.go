package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mossriver/alphacouncil/internal/infrastructure/cache"
)

// MetricsRegistry holds the Prometheus collectors for the pipeline. It
// satisfies the pipeline's Metrics interface.
type MetricsRegistry struct {
	registry *prometheus.Registry

	PhaseDuration    *prometheus.HistogramVec
	ProducerFailures *prometheus.CounterVec
	RunsTotal        *prometheus.CounterVec
	ProducerWeight   *prometheus.GaugeVec
	CacheHits        prometheus.Gauge
	CacheMisses      prometheus.Gauge
}

// NewMetricsRegistry creates the collectors on a private registry so tests
// can build as many as they need.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alphacouncil_phase_duration_seconds",
				Help:    "Duration of each pipeline phase in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0, 30.0, 60.0, 120.0},
			},
			[]string{"phase"},
		),

		ProducerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphacouncil_producer_failures_total",
				Help: "Total producer invocations that returned no forecast",
			},
			[]string{"producer"},
		),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphacouncil_runs_total",
				Help: "Total completed pipeline runs by result",
			},
			[]string{"result"},
		),

		ProducerWeight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "alphacouncil_producer_weight",
				Help: "Current consensus weight per producer",
			},
			[]string{"producer"},
		),

		CacheHits: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alphacouncil_cache_hits_total",
				Help: "Forecast cache hits since process start",
			},
		),

		CacheMisses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alphacouncil_cache_misses_total",
				Help: "Forecast cache misses since process start",
			},
		),
	}

	m.registry.MustRegister(
		m.PhaseDuration,
		m.ProducerFailures,
		m.RunsTotal,
		m.ProducerWeight,
		m.CacheHits,
		m.CacheMisses,
	)

	return m
}

// PhaseObserved records the wall time of one pipeline phase.
func (m *MetricsRegistry) PhaseObserved(phase string, seconds float64) {
	m.PhaseDuration.WithLabelValues(phase).Observe(seconds)
}

// ProducerFailed counts one failed producer invocation.
func (m *MetricsRegistry) ProducerFailed(producerID string) {
	m.ProducerFailures.WithLabelValues(producerID).Inc()
}

// RunCompleted counts one finished run by result.
func (m *MetricsRegistry) RunCompleted(result string) {
	m.RunsTotal.WithLabelValues(result).Inc()
}

// SetWeights mirrors the current producer weights into the gauge.
func (m *MetricsRegistry) SetWeights(weights map[string]float64) {
	for id, w := range weights {
		m.ProducerWeight.WithLabelValues(id).Set(w)
	}
}

// SetCacheStats mirrors the cache traffic counters into gauges.
func (m *MetricsRegistry) SetCacheStats(stats cache.Stats) {
	m.CacheHits.Set(float64(stats.Hits))
	m.CacheMisses.Set(float64(stats.Misses))
}

// Handler returns the /metrics handler for this registry.
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
