// Package telemetry holds the proxy's Prometheus metrics and OpenTelemetry
// tracer setup.
package telemetry

import (
	"strings"
	"time"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics receives observations from the proxy and the Bitrix24 transport.
type Metrics interface {
	// ObserveToolCall records one inbound tool call. outcome is "ok" or an
	// error code such as VALIDATION_ERROR.
	ObserveToolCall(tool, transport, outcome string, d time.Duration)
	// ObserveUpstream records one completed Bitrix24 call after retries.
	ObserveUpstream(method, outcome string, attempts int, d time.Duration)
	// ObserveRetry records one scheduled retry.
	ObserveRetry(method string, status int)
	// ObservePacerWait records the time spent waiting for a dispatch slot.
	ObservePacerWait(d time.Duration)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ObserveToolCall(string, string, string, time.Duration) {}
func (NopMetrics) ObserveUpstream(string, string, int, time.Duration)    {}
func (NopMetrics) ObserveRetry(string, int)                              {}
func (NopMetrics) ObservePacerWait(time.Duration)                        {}

var _ Metrics = NopMetrics{}

// MethodFamily reduces a REST method to its first two segments so label
// cardinality stays bounded: "crm.deal.list" -> "crm.deal".
func MethodFamily(method string) string {
	parts := strings.SplitN(method, ".", 3)
	if len(parts) < 2 {
		return method
	}
	return parts[0] + "." + parts[1]
}
