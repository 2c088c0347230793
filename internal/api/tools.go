package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/proxy"
)

// maxBodyBytes caps inbound call_tool bodies.
const maxBodyBytes = 1 << 20

var errNotObject = errors.New("body is not a JSON object")

// handleListTools handles GET /mcp/list_tools.
func (d *Dependencies) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, OKResp{
		OK:   true,
		Data: ListToolsData{Tools: d.Service.Catalogue().All()},
	})
}

// handleCallTool handles POST /mcp/call_tool.
func (d *Dependencies) handleCallTool(w http.ResponseWriter, r *http.Request) {
	if !isJSONContentType(r.Header.Get("Content-Type")) {
		writeJSON(w, http.StatusUnsupportedMediaType, ErrorResp{
			Message: "Content-Type must be application/json",
			Code:    errmodel.CodeUnsupportedMediaType,
		})
		return
	}

	req, err := readCallToolReq(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResp{
				Message: "Request body is too large",
				Code:    errmodel.CodeInvalidPayload,
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResp{
			Message: "Request body must be a JSON object",
			Code:    errmodel.CodeInvalidPayload,
		})
		return
	}

	// A client disconnect does not abort outbound work; the per-attempt
	// timeout bounds it.
	result, err := d.Service.Call(context.WithoutCancel(r.Context()), req.Tool, req.Args, proxy.TransportHTTP)
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResp{OK: true, Data: result})
}

func (d *Dependencies) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, OKResp{OK: true})
}

func (d *Dependencies) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, OKResp{OK: true, Data: HealthData{Status: "healthy"}})
}

// writeError renders any error as the failure envelope.
func (d *Dependencies) writeError(w http.ResponseWriter, err error) {
	e := errmodel.From(err)
	status := errmodel.HTTPStatus(e)
	if status >= http.StatusInternalServerError && e.Kind != errmodel.KindUpstream {
		d.Logger.Error("tool call failed", zap.String("code", e.Code), zap.Error(err))
	}
	writeJSON(w, status, ErrorResp{
		Message: e.Message,
		Code:    e.Code,
		Details: e.Details,
	})
}

// readCallToolReq decodes a call_tool body. The body must be one JSON object.
func readCallToolReq(w http.ResponseWriter, r *http.Request) (CallToolReq, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	raw, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return CallToolReq{}, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return CallToolReq{}, errNotObject
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return CallToolReq{}, err
	}
	tool, _ := body["tool"].(string)
	return CallToolReq{Tool: tool, Args: engine.NormalizeArgs(body["args"])}, nil
}

// isJSONContentType accepts application/json and any +json media type.
func isJSONContentType(header string) bool {
	if header == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mt == "application/json" || (strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json"))
}
