package proxy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine/builders"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/storage"
)

type fakeCaller struct {
	mu      sync.Mutex
	method  string
	payload map[string]any
	calls   int
	result  any
	err     error
}

func (f *fakeCaller) Call(_ context.Context, method string, payload map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.method = method
	f.payload = payload
	return f.result, f.err
}

type recordingEvents struct {
	mu     sync.Mutex
	events []*storage.CallEvent
}

func (r *recordingEvents) Write(e *storage.CallEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEvents) Close() {}

func newTestService(t *testing.T, caller Caller) (*Service, *recordingEvents) {
	t.Helper()
	d, err := builders.NewDispatcher()
	require.NoError(t, err)
	events := &recordingEvents{}
	tick := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(5 * time.Millisecond)
		return tick
	}
	return NewService(d, caller, WithEvents(events), WithClock(clock)), events
}

func TestService_CallSuccess(t *testing.T) {
	caller := &fakeCaller{result: map[string]any{"ID": "123"}}
	svc, events := newTestService(t, caller)

	ctx := WithRequestID(context.Background(), "req-1")
	res, err := svc.Call(ctx, "bitrix_deal_get", map[string]any{"id": 123.0}, TransportHTTP)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ID": "123"}, res)
	assert.Equal(t, "crm.deal.get", caller.method)
	assert.Equal(t, map[string]any{"id": 123.0}, caller.payload)

	require.Len(t, events.events, 1)
	e := events.events[0]
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, "bitrix_deal_get", e.Tool)
	assert.Equal(t, "crm.deal.get", e.Method)
	assert.Equal(t, "deals", e.Builder)
	assert.Equal(t, TransportHTTP, e.Transport)
	assert.Equal(t, "ok", e.Outcome)
	assert.Equal(t, uint16(200), e.HTTPStatus)
	assert.InDelta(t, 5.0, e.LatencyMs, 0.001)
	assert.NotEmpty(t, e.ArgsHash)
}

func TestService_ValidationNeverCallsUpstream(t *testing.T) {
	caller := &fakeCaller{}
	svc, events := newTestService(t, caller)

	_, err := svc.Call(context.Background(), "bitrix_deal_get", map[string]any{"id": "123"}, TransportMCP)
	var e *errmodel.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errmodel.KindValidation, e.Kind)
	assert.Equal(t, 0, caller.calls)

	require.Len(t, events.events, 1)
	assert.Equal(t, errmodel.CodeValidation, events.events[0].Outcome)
	assert.Equal(t, uint16(400), events.events[0].HTTPStatus)
	assert.Empty(t, events.events[0].Method)
	_, err = uuid.Parse(events.events[0].RequestID)
	assert.NoError(t, err)
}

func TestService_UnknownTool(t *testing.T) {
	svc, events := newTestService(t, &fakeCaller{})
	_, err := svc.Call(context.Background(), "bitrix_unknown", nil, TransportCLI)
	var e *errmodel.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Unknown tool: bitrix_unknown", e.Message)
	require.Len(t, events.events, 1)
	assert.Empty(t, events.events[0].Builder)
}

func TestService_UpstreamFailureClassified(t *testing.T) {
	caller := &fakeCaller{err: errmodel.Upstream("Not found", 404, map[string]any{"error": "NOT_FOUND"}, nil)}
	svc, events := newTestService(t, caller)

	_, err := svc.Call(context.Background(), "bitrix_deal_get", map[string]any{"id": 1.0}, TransportHTTP)
	var e *errmodel.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 404, e.StatusCode)
	require.Len(t, events.events, 1)
	assert.Equal(t, errmodel.CodeUpstream, events.events[0].Outcome)
	assert.Equal(t, uint16(404), events.events[0].UpstreamStatus)
}

func TestService_UnclassifiedErrorBecomesInternal(t *testing.T) {
	svc, _ := newTestService(t, &fakeCaller{err: errors.New("boom")})
	_, err := svc.Call(context.Background(), "bitrix_scope", nil, TransportHTTP)
	var e *errmodel.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errmodel.KindInternal, e.Kind)
	assert.Equal(t, errmodel.CodeInternal, e.Code)
}
