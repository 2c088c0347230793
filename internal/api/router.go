package api

import (
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/proxy"
)

// DefaultCacheTTL is how long a verified bearer token skips bcrypt.
const DefaultCacheTTL = 5 * time.Minute

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Service  *proxy.Service
	MCP      *mcp.Server         // nil disables POST /mcp
	Gatherer prometheus.Gatherer // nil uses the default registry
	Logger   *zap.Logger
	Version  string

	// TokenHash is a bcrypt hash of the shared bearer token. Empty means open access.
	TokenHash string
	CacheTTL  time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = DefaultCacheTTL
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	spec, err := BuildOpenAPI(deps.Service.Catalogue(), deps.Version)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	// Tool endpoints (bearer token when configured)
	mux.Handle("GET /mcp/list_tools", deps.authMiddleware(http.HandlerFunc(deps.handleListTools)))
	mux.Handle("POST /mcp/call_tool", deps.authMiddleware(http.HandlerFunc(deps.handleCallTool)))
	if deps.MCP != nil {
		streamable := deps.authMiddleware(mcpHandler(deps.MCP))
		mux.Handle("POST /mcp", streamable)
		mux.Handle("GET /mcp", streamable)
		mux.Handle("DELETE /mcp", streamable)
	}

	// Liveness
	mux.HandleFunc("GET /mcp/ping", deps.handlePing)
	mux.HandleFunc("GET /mcp/health", deps.handleHealth)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Introspection
	mux.HandleFunc("GET /openapi.json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, spec)
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	handler := corsMiddleware(requestLogging(requestID(mux), deps.Logger))
	return otelhttp.NewHandler(handler, "bitrix-proxy"), nil
}
