package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"
)

// BuildOpenAPI describes the HTTP boundary. The tool property of the
// call_tool body enumerates the catalogue.
func BuildOpenAPI(cat *registry.Catalogue, version string) (*openapi3.T, error) {
	names := make([]any, 0, cat.Len())
	for _, def := range cat.All() {
		names = append(names, def.Name)
	}

	errorSchema := openapi3.NewObjectSchema().
		WithProperty("ok", openapi3.NewBoolSchema()).
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("code", openapi3.NewStringSchema()).
		WithProperty("details", openapi3.NewSchema().WithNullable())
	okSchema := openapi3.NewObjectSchema().
		WithProperty("ok", openapi3.NewBoolSchema()).
		WithProperty("data", openapi3.NewSchema())

	callBody := openapi3.NewObjectSchema().
		WithProperty("tool", openapi3.NewStringSchema().WithEnum(names...)).
		WithProperty("args", openapi3.NewObjectSchema())
	callBody.Required = []string{"tool"}

	okResponse := func(desc string) *openapi3.ResponseRef {
		return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(desc).WithJSONSchema(okSchema)}
	}
	errResponse := func(desc string) *openapi3.ResponseRef {
		return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(desc).WithJSONSchema(errorSchema)}
	}

	listTools := openapi3.NewOperation()
	listTools.OperationID = "listTools"
	listTools.Summary = "List the tool catalogue"
	listTools.Responses = openapi3.NewResponses(openapi3.WithStatus(http.StatusOK, okResponse("Tool catalogue")))

	callTool := openapi3.NewOperation()
	callTool.OperationID = "callTool"
	callTool.Summary = "Validate, translate and execute one tool call"
	callTool.RequestBody = &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchema(callBody),
	}
	callTool.Responses = openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, okResponse("Unwrapped upstream result")),
		openapi3.WithStatus(http.StatusBadRequest, errResponse("Validation failure or invalid payload")),
		openapi3.WithStatus(http.StatusUnsupportedMediaType, errResponse("Content-Type is not application/json")),
		openapi3.WithStatus(http.StatusInternalServerError, errResponse("Configuration or internal failure")),
		openapi3.WithStatus(http.StatusBadGateway, errResponse("Upstream unreachable")),
	)

	ping := openapi3.NewOperation()
	ping.OperationID = "ping"
	ping.Responses = openapi3.NewResponses(openapi3.WithStatus(http.StatusOK, okResponse("Alive")))

	health := openapi3.NewOperation()
	health.OperationID = "health"
	health.Responses = openapi3.NewResponses(openapi3.WithStatus(http.StatusOK, okResponse("Healthy")))

	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   ServerName,
			Version: version,
		},
		Paths: openapi3.NewPaths(
			openapi3.WithPath("/mcp/list_tools", &openapi3.PathItem{Get: listTools}),
			openapi3.WithPath("/mcp/call_tool", &openapi3.PathItem{Post: callTool}),
			openapi3.WithPath("/mcp/ping", &openapi3.PathItem{Get: ping}),
			openapi3.WithPath("/mcp/health", &openapi3.PathItem{Get: health}),
		),
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("BuildOpenAPI: %w", err)
	}
	return doc, nil
}
