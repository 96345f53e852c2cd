// ABOUTME: Prometheus instruments for the resource cache and API client
// ABOUTME: Registered on a caller-supplied registry so tests stay isolated

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument. A nil *Metrics is valid and records nothing.
type Metrics struct {
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheFetches       *prometheus.CounterVec
	cacheFetchErrors   *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	forcedLogouts      prometheus.Counter
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novorio_cache_hits_total",
			Help: "Reads served from a cache entry without waiting on a fetch.",
		}, []string{"kind"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novorio_cache_misses_total",
			Help: "Reads that had to wait for a fetch.",
		}, []string{"kind"}),
		cacheFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novorio_cache_fetches_total",
			Help: "Fetcher invocations after de-duplication.",
		}, []string{"kind"}),
		cacheFetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novorio_cache_fetch_errors_total",
			Help: "Fetcher invocations that returned an error.",
		}, []string{"kind"}),
		cacheInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novorio_cache_invalidations_total",
			Help: "Entries marked stale by invalidation.",
		}, []string{"kind"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "novorio_api_request_duration_seconds",
			Help:    "Game API request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
		forcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "novorio_forced_logouts_total",
			Help: "Sessions ended by an unauthorized response or token expiry.",
		}),
	}

	reg.MustRegister(
		m.cacheHits, m.cacheMisses, m.cacheFetches, m.cacheFetchErrors,
		m.cacheInvalidations, m.requestDuration, m.forcedLogouts,
	)
	return m
}

// Handler serves the given gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheHit(kind string) {
	if m != nil {
		m.cacheHits.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) CacheMiss(kind string) {
	if m != nil {
		m.cacheMisses.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) CacheFetch(kind string, err error) {
	if m == nil {
		return
	}
	m.cacheFetches.WithLabelValues(kind).Inc()
	if err != nil {
		m.cacheFetchErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) CacheInvalidated(kind string) {
	if m != nil {
		m.cacheInvalidations.WithLabelValues(kind).Inc()
	}
}

// ObserveRequest records an API call; status 0 means no response arrived.
func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	if m != nil {
		m.requestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ForcedLogout() {
	if m != nil {
		m.forcedLogouts.Inc()
	}
}
