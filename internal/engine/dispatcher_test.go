package engine

import (
	"errors"
	"testing"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBuilder claims a fixed set of tools and counts calls.
type stubBuilder struct {
	name   string
	tools  []string
	method string
	calls  int
}

func (s *stubBuilder) Name() string { return s.name }

func (s *stubBuilder) Tools() []registry.ToolDefinition {
	defs := make([]registry.ToolDefinition, 0, len(s.tools))
	for _, t := range s.tools {
		defs = append(defs, registry.ToolDefinition{Name: t, Description: t})
	}
	return defs
}

func (s *stubBuilder) TryBuild(tool string, args map[string]any) (Request, bool, error) {
	s.calls++
	for _, t := range s.tools {
		if t == tool {
			if args["fail"] == true {
				return Request{}, true, errmodel.Validation("fail requested")
			}
			return Request{Method: s.method, Payload: args}, true, nil
		}
	}
	return Request{}, false, nil
}

func TestDispatcher_FirstClaimWins(t *testing.T) {
	a := &stubBuilder{name: "a", tools: []string{"tool_a"}, method: "a.method"}
	b := &stubBuilder{name: "b", tools: []string{"tool_b"}, method: "b.method"}
	d, err := NewDispatcher([]Builder{a, b})
	require.NoError(t, err)

	req, err := d.Dispatch("tool_b", map[string]any{"x": 1.0})
	require.NoError(t, err)
	assert.Equal(t, "b.method", req.Method)
	assert.Equal(t, map[string]any{"x": 1.0}, req.Payload)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)

	owner, ok := d.Owner("tool_b")
	require.True(t, ok)
	assert.Equal(t, "b", owner)
}

func TestDispatcher_UnknownTool(t *testing.T) {
	d, err := NewDispatcher([]Builder{&stubBuilder{name: "a", tools: []string{"tool_a"}}})
	require.NoError(t, err)

	for _, name := range []string{"", "tool_z"} {
		_, err := d.Dispatch(name, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownTool))
		assert.True(t, errmodel.IsKind(err, errmodel.KindValidation))
	}

	_, err = d.Dispatch("tool_z", nil)
	assert.Equal(t, "Unknown tool: tool_z", errmodel.From(err).Message)
	_, err = d.Dispatch("", nil)
	assert.Equal(t, "Tool name is required", errmodel.From(err).Message)
}

func TestDispatcher_ValidationStopsTrial(t *testing.T) {
	a := &stubBuilder{name: "a", tools: []string{"tool_a"}}
	b := &stubBuilder{name: "b", tools: []string{"tool_b"}}
	d, err := NewDispatcher([]Builder{a, b})
	require.NoError(t, err)

	_, err = d.Dispatch("tool_a", map[string]any{"fail": true})
	require.Error(t, err)
	assert.Equal(t, 0, b.calls)
}

func TestDispatcher_DuplicateNamesRejected(t *testing.T) {
	a := &stubBuilder{name: "a", tools: []string{"shared"}}
	b := &stubBuilder{name: "b", tools: []string{"shared"}}

	_, err := NewDispatcher([]Builder{a, b})
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrDuplicateTool))
	assert.Contains(t, err.Error(), "shared")

	assert.Panics(t, func() { MustNewDispatcher([]Builder{a, b}) })
}

func TestDispatcher_CatalogueOrder(t *testing.T) {
	a := &stubBuilder{name: "a", tools: []string{"a1", "a2"}}
	b := &stubBuilder{name: "b", tools: []string{"b1"}}
	d := MustNewDispatcher([]Builder{a, b})

	var names []string
	for _, def := range d.Catalogue().All() {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{"a1", "a2", "b1"}, names)
}
