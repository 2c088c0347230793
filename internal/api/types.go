package api

import "github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"

// --- Envelope ---

// OKResp is the success envelope. Data is omitted for ping.
type OKResp struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// ErrorResp is the failure envelope. Details is always present, null when
// there is nothing to report.
type ErrorResp struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details"`
}

// --- GET /mcp/list_tools ---

// ListToolsData is the data member of the list_tools response.
type ListToolsData struct {
	Tools []registry.ToolDefinition `json:"tools"`
}

// --- POST /mcp/call_tool ---

// CallToolReq is the body of POST /mcp/call_tool. Both members are read
// leniently: a non-string tool counts as missing and non-object args as empty.
type CallToolReq struct {
	Tool string
	Args map[string]any
}

// HealthData is the data member of GET /mcp/health.
type HealthData struct {
	Status string `json:"status"`
}
