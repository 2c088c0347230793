package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/proxy"
)

// ServerName identifies the proxy to MCP clients.
const ServerName = "bitrix24-mcp-proxy"

// NewMCPServer registers one MCP tool per catalogue entry, in catalogue order.
func NewMCPServer(svc *proxy.Service, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, &mcp.ServerOptions{HasTools: true})
	for _, def := range svc.Catalogue().All() {
		server.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema(),
		}, mcpToolHandler(svc, def.Name))
	}
	return server
}

func mcpToolHandler(svc *proxy.Service, name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw any
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &raw); err != nil {
				return mcpError(errmodel.WrapValidation("Arguments must be a JSON object", err)), nil
			}
		}

		result, err := svc.Call(context.WithoutCancel(ctx), name, engine.NormalizeArgs(raw), proxy.TransportMCP)
		if err != nil {
			return mcpError(err), nil
		}
		text, err := json.Marshal(result)
		if err != nil {
			return mcpError(err), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		}, nil
	}
}

// mcpError reports a failed call in-band so the client sees the message.
func mcpError(err error) *mcp.CallToolResult {
	e := errmodel.From(err)
	text, _ := json.Marshal(ErrorResp{Message: e.Message, Code: e.Code, Details: e.Details})
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
	}
}

// mcpHandler serves the Streamable HTTP transport with JSON responses.
func mcpHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})
}
