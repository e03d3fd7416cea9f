package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

const subsystem = "watcher"

// PrometheusMetrics holds the watcher's collectors
type PrometheusMetrics struct {
	parseTicks    prometheus.Counter
	fragments     *prometheus.CounterVec
	parseFailures *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	navigations   *prometheus.CounterVec
	retryWindow   prometheus.Gauge
	sinkErrors    *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	logger        *zap.Logger
	httpHandler   func(*fasthttp.RequestCtx)
}

// NewPrometheusMetricsWithRegistry registers every collector on registerer.
// registerer should also be a Gatherer; otherwise the default gatherer is served.
func NewPrometheusMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *PrometheusMetrics {
	pm := &PrometheusMetrics{logger: logger}

	pm.parseTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "parse_ticks_total",
		Help:      "Coalesced parse executions",
	})

	pm.fragments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "fragments_total",
		Help:      "Extraction attempts by source and outcome",
	}, []string{"source", "outcome"}) // outcome: accepted, duplicate, no_match

	pm.parseFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "parse_failures_total",
		Help:      "Accepted fragments that were not valid JSON",
	}, []string{"mode"})

	pm.fetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "fetches_total",
		Help:      "Network refetches by outcome",
	}, []string{"status"}) // status: ok, http_error, error, canceled, superseded

	pm.fetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "fetch_duration_seconds",
		Help:      "Time spent refetching the current URL",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	pm.navigations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "navigations_total",
		Help:      "Detected URL changes by trigger",
	}, []string{"trigger"})

	pm.retryWindow = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "retry_window_active",
		Help:      "1 while the post-navigation retry window is open",
	})

	pm.sinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sink_errors_total",
		Help:      "Result sink failures by sink",
	}, []string{"sink"})

	pm.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "http_requests_total",
		Help:      "Status API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	registerer.MustRegister(
		pm.parseTicks,
		pm.fragments,
		pm.parseFailures,
		pm.fetches,
		pm.fetchDuration,
		pm.navigations,
		pm.retryWindow,
		pm.sinkErrors,
		pm.httpRequests,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Debug("Watcher Prometheus metrics initialized", zap.String("namespace", namespace))
	return pm
}

// ServeHTTP serves the exposition format
func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}
