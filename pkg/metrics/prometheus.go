package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide Prometheus metrics container.
type Metrics struct {
	// HTTP surface
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Internal gRPC surface (health checks, admin reflection)
	GRPCRequestsTotal    *prometheus.CounterVec
	GRPCRequestDuration  *prometheus.HistogramVec
	GRPCRequestsInFlight prometheus.Gauge

	// Selector
	SelectorDrawsTotal *prometheus.CounterVec

	// Rate limiter
	RateLimitAllowedTotal *prometheus.CounterVec
	RateLimitDeniedTotal  *prometheus.CounterVec

	// Caches (project, response, identity)
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Dispatcher
	DispatchOutcomeTotal *prometheus.CounterVec
	DispatchDuration     *prometheus.HistogramVec
	DispatchRetries      *prometheus.HistogramVec

	// Provider health feedback
	ProviderWeight          *prometheus.GaugeVec
	HealthFeedbackCycleTime prometheus.Histogram

	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics constructs and registers the metrics container.
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of client-facing HTTP requests",
			},
			[]string{"route", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of client-facing HTTP requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"route"},
		),

		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Current number of in-flight client requests",
			},
		),

		GRPCRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "grpc_requests_total",
				Help:      "Total number of internal gRPC requests",
			},
			[]string{"method", "status"},
		),

		GRPCRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "grpc_request_duration_seconds",
				Help:      "Duration of internal gRPC requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method"},
		),

		GRPCRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "grpc_requests_in_flight",
				Help:      "Current number of in-flight internal gRPC requests",
			},
		),

		SelectorDrawsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "selector_draws_total",
				Help:      "Total number of provider selection draws",
			},
			[]string{"chain", "class"},
		),

		RateLimitAllowedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rate_limit_allowed_total",
				Help:      "Total number of requests allowed by the rate limiter",
			},
			[]string{"scope"},
		),

		RateLimitDeniedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rate_limit_denied_total",
				Help:      "Total number of requests denied by the rate limiter",
			},
			[]string{"scope"},
		),

		CacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_hits_total",
				Help:      "Total cache hits, by tier",
			},
			[]string{"tier"},
		),

		CacheMissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_misses_total",
				Help:      "Total cache misses, by tier",
			},
			[]string{"tier"},
		),

		DispatchOutcomeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "dispatch_outcome_total",
				Help:      "Dispatcher terminal outcomes, by error kind",
			},
			[]string{"kind"},
		),

		DispatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "dispatch_duration_seconds",
				Help:      "End-to-end dispatch duration",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"chain"},
		),

		DispatchRetries: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "dispatch_retries",
				Help:      "Number of provider retries per request",
				Buckets:   []float64{0, 1, 2, 3, 4, 5},
			},
			[]string{"chain"},
		),

		ProviderWeight: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "provider_weight",
				Help:      "Current provider selection weight",
			},
			[]string{"provider", "chain"},
		),

		HealthFeedbackCycleTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "health_feedback_cycle_seconds",
				Help:      "Duration of one health-feedback re-weighting cycle",
				Buckets:   []float64{.001, .01, .05, .1, .5, 1},
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}

	prometheus.MustRegister(NewRuntimeCollector(namespace, subsystem))

	defaultMetrics = m
	return m
}

// Get returns the process-wide metrics container, initializing a default
// one if InitMetrics has not been called yet.
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("gateway", "")
	}
	return defaultMetrics
}

func (m *Metrics) RecordHTTPRequest(route, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) RecordGRPCRequest(method, status string, duration time.Duration) {
	m.GRPCRequestsTotal.WithLabelValues(method, status).Inc()
	m.GRPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *Metrics) RecordSelectorDraw(chain, class string) {
	m.SelectorDrawsTotal.WithLabelValues(chain, class).Inc()
}

func (m *Metrics) RecordRateLimit(scope string, allowed bool) {
	if allowed {
		m.RateLimitAllowedTotal.WithLabelValues(scope).Inc()
	} else {
		m.RateLimitDeniedTotal.WithLabelValues(scope).Inc()
	}
}

func (m *Metrics) RecordCache(tier string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(tier).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) RecordDispatch(kind, chain string, retries int, duration time.Duration) {
	m.DispatchOutcomeTotal.WithLabelValues(kind).Inc()
	m.DispatchDuration.WithLabelValues(chain).Observe(duration.Seconds())
	m.DispatchRetries.WithLabelValues(chain).Observe(float64(retries))
}

func (m *Metrics) SetProviderWeight(provider, chain string, weight float64) {
	m.ProviderWeight.WithLabelValues(provider, chain).Set(weight)
}

func (m *Metrics) RecordHealthFeedbackCycle(duration time.Duration) {
	m.HealthFeedbackCycleTime.Observe(duration.Seconds())
}

func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler returns the Prometheus scrape handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer serves /metrics and /health on the given port.
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK")) //nolint:errcheck // health endpoint, write failure not actionable
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
