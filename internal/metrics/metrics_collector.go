package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Fragment outcomes
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeNoMatch   = "no_match"
)

// Fetch statuses
const (
	FetchOK         = "ok"
	FetchHTTPError  = "http_error"
	FetchError      = "error"
	FetchCanceled   = "canceled"
	FetchSuperseded = "superseded"
)

// MetricsCollector is the recording API used by the watcher, sinks and status server
type MetricsCollector struct {
	prometheus *PrometheusMetrics
	logger     *zap.Logger
}

// NewMetricsCollector registers on the default registry
func NewMetricsCollector(namespace string, logger *zap.Logger) *MetricsCollector {
	return NewMetricsCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewMetricsCollectorWithRegistry registers on a caller-supplied registry, used by tests
func NewMetricsCollectorWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetricsWithRegistry(namespace, registerer, logger),
		logger:     logger,
	}
}

func (mc *MetricsCollector) RecordParseTick() {
	mc.prometheus.parseTicks.Inc()
}

// RecordFragment counts one extraction attempt for a source (document, state, fetch)
func (mc *MetricsCollector) RecordFragment(source, outcome string) {
	mc.prometheus.fragments.WithLabelValues(source, outcome).Inc()
}

func (mc *MetricsCollector) RecordParseFailure(mode string) {
	mc.prometheus.parseFailures.WithLabelValues(mode).Inc()
}

// RecordFetch counts a finished refetch; duration is skipped for canceled fetches
func (mc *MetricsCollector) RecordFetch(status string, duration time.Duration) {
	mc.prometheus.fetches.WithLabelValues(status).Inc()
	if status != FetchCanceled && duration > 0 {
		mc.prometheus.fetchDuration.Observe(duration.Seconds())
	}
}

func (mc *MetricsCollector) RecordNavigation(trigger string) {
	mc.prometheus.navigations.WithLabelValues(trigger).Inc()
}

func (mc *MetricsCollector) SetRetryWindowActive(active bool) {
	if active {
		mc.prometheus.retryWindow.Set(1)
		return
	}
	mc.prometheus.retryWindow.Set(0)
}

func (mc *MetricsCollector) RecordSinkError(sink string) {
	mc.prometheus.sinkErrors.WithLabelValues(sink).Inc()
	mc.logger.Debug("Recorded sink error", zap.String("sink", sink))
}

func (mc *MetricsCollector) RecordHTTPRequest(endpoint, status string) {
	mc.prometheus.httpRequests.WithLabelValues(endpoint, status).Inc()
}

// ServeHTTP serves Prometheus metrics via HTTP
func (mc *MetricsCollector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	mc.prometheus.ServeHTTP(ctx)
}
