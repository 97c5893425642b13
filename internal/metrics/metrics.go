// Package metrics bundles the Prometheus collectors for the geocoding and
// coverage subsystems and exposes them over an HTTP handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Breaker state gauge values.
const (
	BreakerStateClosed   = 0
	BreakerStateOpen     = 1
	BreakerStateHalfOpen = 2
)

// Collector bundles Prometheus metrics for geocoding and coverage resolution.
type Collector struct {
	gatherer prometheus.Gatherer

	GeocodeRequests  *prometheus.CounterVec
	GeocodeDuration  *prometheus.HistogramVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheSweeps      *prometheus.CounterVec
	BreakerState     *prometheus.GaugeVec
	ProviderDuration *prometheus.HistogramVec
	ResolveRequests  *prometheus.CounterVec
	ResolveMatches   prometheus.Histogram
}

// NewCollector registers the collectors against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		gatherer: gatherer,
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geocode_requests_total",
			Help: "Geocode resolutions by outcome (cache_hit, unresolved, or the resolving provider).",
		}, []string{"outcome"}),
		GeocodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geocode_request_duration_seconds",
			Help:    "End-to-end geocode latency in seconds by outcome.",
			Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 5, 15, 45},
		}, []string{"outcome"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geocode_cache_hits_total",
			Help: "Geocode cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geocode_cache_misses_total",
			Help: "Geocode cache misses (absent or expired).",
		}),
		CacheSweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geocode_cache_swept_entries_total",
			Help: "Cache entries removed by sweeps, labeled by sweep kind.",
		}, []string{"kind"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "geocode_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=open, 2=half-open).",
		}, []string{"provider"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geocode_provider_duration_seconds",
			Help:    "Upstream geocoding vendor call latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"provider", "result"}),
		ResolveRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coverage_resolve_requests_total",
			Help: "Coverage resolutions by outcome (matched, empty, degraded).",
		}, []string{"outcome"}),
		ResolveMatches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coverage_resolve_matches",
			Help:    "Number of ranked resources returned per resolution.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
	}

	reg.MustRegister(
		c.GeocodeRequests, c.GeocodeDuration,
		c.CacheHits, c.CacheMisses, c.CacheSweeps,
		c.BreakerState, c.ProviderDuration,
		c.ResolveRequests, c.ResolveMatches,
	)

	return c
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
