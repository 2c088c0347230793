package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusMetrics struct {
	toolCalls        *prometheus.CounterVec
	toolDuration     *prometheus.HistogramVec
	upstreamRequests *prometheus.CounterVec
	upstreamAttempts *prometheus.HistogramVec
	upstreamDuration *prometheus.HistogramVec
	retries          *prometheus.CounterVec
	pacerWait        prometheus.Histogram
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitrix_proxy_tool_calls_total",
				Help: "Total number of tool calls by tool, transport and outcome",
			},
			[]string{"tool", "transport", "outcome"},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bitrix_proxy_tool_call_duration_seconds",
				Help:    "End-to-end duration of tool calls in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"transport", "outcome"},
		),
		upstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitrix_upstream_requests_total",
				Help: "Total number of Bitrix24 REST calls by method family and outcome",
			},
			[]string{"method_family", "outcome"},
		),
		upstreamAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bitrix_upstream_attempts",
				Help:    "Attempts spent per Bitrix24 REST call",
				Buckets: []float64{1, 2, 3, 4, 5, 8},
			},
			[]string{"method_family"},
		),
		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bitrix_upstream_duration_seconds",
				Help:    "Duration of Bitrix24 REST calls including retries in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method_family", "outcome"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitrix_upstream_retries_total",
				Help: "Total number of retried Bitrix24 attempts by upstream status (0 = no response)",
			},
			[]string{"method_family", "status"},
		),
		pacerWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bitrix_pacer_wait_seconds",
				Help:    "Time spent waiting for a rate limiter slot in seconds",
				Buckets: []float64{0, .05, .1, .25, .5, 1, 2, 5, 10},
			},
		),
	}
}

func (p *PrometheusMetrics) ObserveToolCall(tool, transport, outcome string, d time.Duration) {
	p.toolCalls.WithLabelValues(tool, transport, outcome).Inc()
	p.toolDuration.WithLabelValues(transport, outcome).Observe(d.Seconds())
}

func (p *PrometheusMetrics) ObserveUpstream(method, outcome string, attempts int, d time.Duration) {
	family := MethodFamily(method)
	p.upstreamRequests.WithLabelValues(family, outcome).Inc()
	p.upstreamAttempts.WithLabelValues(family).Observe(float64(attempts))
	p.upstreamDuration.WithLabelValues(family, outcome).Observe(d.Seconds())
}

func (p *PrometheusMetrics) ObserveRetry(method string, status int) {
	p.retries.WithLabelValues(MethodFamily(method), strconv.Itoa(status)).Inc()
}

func (p *PrometheusMetrics) ObservePacerWait(d time.Duration) {
	p.pacerWait.Observe(d.Seconds())
}

var _ Metrics = (*PrometheusMetrics)(nil)
