// Package proxy runs one tool call end to end: dispatch, upstream call,
// audit event, metrics and tracing.
package proxy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/storage"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/telemetry"
)

// Transports recorded on call events.
const (
	TransportHTTP = "http"
	TransportMCP  = "mcp"
	TransportCLI  = "cli"
)

// Caller sends one translated request upstream. *bitrix.Client implements it.
type Caller interface {
	Call(ctx context.Context, method string, payload map[string]any) (any, error)
}

type requestIDKey struct{}

// WithRequestID stores the request id used for the call's audit event.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the id set by WithRequestID, if any.
func RequestIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// Service is the shared core behind every transport.
type Service struct {
	dispatcher *engine.Dispatcher
	caller     Caller
	events     storage.EventWriter
	metrics    telemetry.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

func WithEvents(w storage.EventWriter) Option {
	return func(s *Service) { s.events = w }
}

func WithMetrics(m telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now for event timestamps and latency.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(d *engine.Dispatcher, caller Caller, opts ...Option) *Service {
	s := &Service{
		dispatcher: d,
		caller:     caller,
		events:     nopEvents{},
		metrics:    telemetry.NopMetrics{},
		logger:     zap.NewNop(),
		tracer:     telemetry.Tracer(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Catalogue returns the published tool definitions.
func (s *Service) Catalogue() *registry.Catalogue {
	return s.dispatcher.Catalogue()
}

// Dispatch validates args and returns the translated request without
// calling upstream.
func (s *Service) Dispatch(tool string, args map[string]any) (engine.Request, error) {
	return s.dispatcher.Dispatch(tool, args)
}

// Call dispatches tool, sends the request and returns the unwrapped result.
// Errors are *errmodel.Error.
func (s *Service) Call(ctx context.Context, tool string, args map[string]any, transport string) (any, error) {
	start := s.now()
	requestID, ok := RequestIDFrom(ctx)
	if !ok {
		requestID = uuid.NewString()
	}

	ctx, span := s.tracer.Start(ctx, "tool.call", trace.WithAttributes(
		attribute.String("tool.name", tool),
		attribute.String("tool.transport", transport),
		attribute.String("request.id", requestID),
	))
	defer span.End()

	event := &storage.CallEvent{
		RequestID: requestID,
		Timestamp: start.UTC(),
		Tool:      tool,
		Transport: transport,
	}
	event.ArgsHash, event.ArgsSize = storage.HashArgs(args)
	if owner, ok := s.dispatcher.Owner(tool); ok {
		event.Builder = owner
	}

	result, err := s.call(ctx, tool, args, event)

	latency := s.now().Sub(start)
	event.LatencyMs = float32(latency.Seconds() * 1000)
	if err != nil {
		e := errmodel.From(err)
		event.Outcome = e.Code
		event.HTTPStatus = uint16(errmodel.HTTPStatus(e))
		event.UpstreamStatus = uint16(e.StatusCode)
		span.RecordError(e)
		span.SetStatus(codes.Error, e.Message)
		err = e
	} else {
		event.Outcome = telemetry.OutcomeOK
		event.HTTPStatus = 200
	}
	span.SetAttributes(attribute.String("tool.outcome", event.Outcome))

	s.events.Write(event)
	metricTool := tool
	if event.Builder == "" {
		metricTool = "unknown"
	}
	s.metrics.ObserveToolCall(metricTool, transport, event.Outcome, latency)
	s.logger.Debug("tool call finished",
		zap.String("request_id", requestID),
		zap.String("tool", tool),
		zap.String("method", event.Method),
		zap.String("outcome", event.Outcome),
		zap.Duration("latency", latency),
	)
	return result, err
}

func (s *Service) call(ctx context.Context, tool string, args map[string]any, event *storage.CallEvent) (any, error) {
	req, err := s.dispatcher.Dispatch(tool, args)
	if err != nil {
		return nil, err
	}
	event.Method = req.Method
	return s.caller.Call(ctx, req.Method, req.Payload)
}

type nopEvents struct{}

func (nopEvents) Write(*storage.CallEvent) {}
func (nopEvents) Close()                   {}
