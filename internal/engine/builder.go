package engine

import "github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"

// Request is one translated Bitrix24 REST call.
type Request struct {
	Method  string         `json:"method"`
	Payload map[string]any `json:"payload"`
}

// Builder translates the tools of one entity family.
// TryBuild must be pure: identical input yields identical output.
type Builder interface {
	// Name identifies the entity family, e.g. "deals".
	Name() string

	// Tools returns the static definitions this builder contributes.
	Tools() []registry.ToolDefinition

	// TryBuild returns ok=false when the tool is not one of this builder's.
	// Validation failures are returned as *errmodel.Error with KindValidation.
	TryBuild(tool string, args map[string]any) (req Request, ok bool, err error)
}

// NormalizeArgs turns an arbitrary decoded "args" value into an argument bag.
// Absent, null and non-object values become an empty map.
func NormalizeArgs(v any) map[string]any {
	if m, ok := v.(map[string]any); ok && m != nil {
		return m
	}
	return map[string]any{}
}
