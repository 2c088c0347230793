package engine

import (
	"errors"
	"fmt"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/registry"
)

// ErrUnknownTool matches dispatch failures for empty or unclaimed tool names.
var ErrUnknownTool = errors.New("unknown tool")

// Dispatcher tries builders in a fixed order until one claims the tool.
type Dispatcher struct {
	builders  []Builder
	catalogue *registry.Catalogue
	owner     map[string]string // tool name -> builder name
}

// NewDispatcher takes the builders in trial order. Tool names must be unique
// across all builders.
func NewDispatcher(builders []Builder) (*Dispatcher, error) {
	var defs []registry.ToolDefinition
	owner := make(map[string]string)
	for _, b := range builders {
		for _, d := range b.Tools() {
			if prev, ok := owner[d.Name]; ok {
				return nil, fmt.Errorf("NewDispatcher: %w: %s (builders %s and %s)",
					registry.ErrDuplicateTool, d.Name, prev, b.Name())
			}
			owner[d.Name] = b.Name()
			defs = append(defs, d)
		}
	}
	cat, err := registry.NewCatalogue(defs)
	if err != nil {
		return nil, fmt.Errorf("NewDispatcher: %w", err)
	}
	return &Dispatcher{builders: builders, catalogue: cat, owner: owner}, nil
}

// MustNewDispatcher is NewDispatcher that panics on a catalogue conflict.
func MustNewDispatcher(builders []Builder) *Dispatcher {
	d, err := NewDispatcher(builders)
	if err != nil {
		panic(err)
	}
	return d
}

// Dispatch validates args and returns the request for tool.
// It never performs I/O.
func (d *Dispatcher) Dispatch(tool string, args map[string]any) (Request, error) {
	if tool == "" {
		return Request{}, errmodel.WrapValidation("Tool name is required", ErrUnknownTool)
	}
	if args == nil {
		args = map[string]any{}
	}
	for _, b := range d.builders {
		req, ok, err := b.TryBuild(tool, args)
		if err != nil {
			return Request{}, err
		}
		if ok {
			return req, nil
		}
	}
	return Request{}, errmodel.WrapValidation("Unknown tool: "+tool, ErrUnknownTool)
}

// Catalogue returns every builder's definitions in trial order.
func (d *Dispatcher) Catalogue() *registry.Catalogue {
	return d.catalogue
}

// Owner returns the builder name that defines tool.
func (d *Dispatcher) Owner(tool string) (string, bool) {
	name, ok := d.owner[tool]
	return name, ok
}
