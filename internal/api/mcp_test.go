package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/proxy"
)

func connectClient(t *testing.T, ctx context.Context, server *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ct, st := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestMCP_ListToolsMatchesCatalogue(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &fakeCaller{})
	session := connectClient(t, ctx, NewMCPServer(svc, "test"))

	res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, res.Tools, svc.Catalogue().Len())

	names := make(map[string]bool, len(res.Tools))
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, def := range svc.Catalogue().All() {
		assert.True(t, names[def.Name], def.Name)
	}
}

func TestMCP_CallTool(t *testing.T) {
	ctx := context.Background()
	events := &recordingEvents{}
	caller := &fakeCaller{result: map[string]any{"ID": "7"}}
	svc := newTestService(t, caller, proxy.WithEvents(events))
	session := connectClient(t, ctx, NewMCPServer(svc, "test"))

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "bitrix_deal_get",
		Arguments: map[string]any{"id": 7},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"ID":"7"}`, textOf(t, res))
	assert.Equal(t, "crm.deal.get", caller.method)

	require.Len(t, events.events, 1)
	assert.Equal(t, proxy.TransportMCP, events.events[0].Transport)
}

func TestMCP_CallToolValidationIsInBand(t *testing.T) {
	ctx := context.Background()
	caller := &fakeCaller{}
	session := connectClient(t, ctx, NewMCPServer(newTestService(t, caller), "test"))

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "bitrix_deal_get",
		Arguments: map[string]any{"id": "abc"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	var env ErrorResp
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &env))
	assert.Equal(t, errmodel.CodeValidation, env.Code)
	assert.Equal(t, 0, caller.calls)
}

func TestMCP_StreamableHTTPEndpoint(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &fakeCaller{result: []any{"crm", "task"}})
	h := newTestRouter(t, &Dependencies{Service: svc, MCP: NewMCPServer(svc, "test")})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: srv.URL + "/mcp"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "bitrix_scope"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `["crm","task"]`, textOf(t, res))
}

// ctxCaller records whether the outbound context was already done.
type ctxCaller struct{ ctxErr error }

func (c *ctxCaller) Call(ctx context.Context, _ string, _ map[string]any) (any, error) {
	c.ctxErr = ctx.Err()
	return true, nil
}

func TestMCP_CancelledSessionDoesNotCancelOutbound(t *testing.T) {
	caller := &ctxCaller{}
	handler := mcpToolHandler(newTestService(t, caller), "bitrix_deal_get")

	ctx, cancel := context.WithCancel(proxy.WithRequestID(context.Background(), "req-1"))
	cancel()
	res, err := handler(ctx, &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Name: "bitrix_deal_get", Arguments: json.RawMessage(`{"id":7}`)},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError, textOf(t, res))
	assert.NoError(t, caller.ctxErr)
}
