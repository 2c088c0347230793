package registry

import (
	"errors"
	"fmt"
	"sync"

	jsv "github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrDuplicateTool is returned when two definitions share a name.
var ErrDuplicateTool = errors.New("duplicate tool name")

// Catalogue is the ordered, name-unique set of tool definitions.
type Catalogue struct {
	defs   []ToolDefinition
	byName map[string]int

	// compiled schemas, keyed by tool name
	schemas sync.Map
}

// NewCatalogue builds a catalogue, rejecting duplicate or empty names.
func NewCatalogue(defs []ToolDefinition) (*Catalogue, error) {
	c := &Catalogue{
		defs:   make([]ToolDefinition, 0, len(defs)),
		byName: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.New("NewCatalogue: tool with empty name")
		}
		if _, ok := c.byName[d.Name]; ok {
			return nil, fmt.Errorf("NewCatalogue: %w: %s", ErrDuplicateTool, d.Name)
		}
		c.byName[d.Name] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// All returns the definitions in catalogue order.
func (c *Catalogue) All() []ToolDefinition {
	out := make([]ToolDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Len returns the number of tools.
func (c *Catalogue) Len() int {
	return len(c.defs)
}

// Get looks up a definition by name.
func (c *Catalogue) Get(name string) (ToolDefinition, bool) {
	i, ok := c.byName[name]
	if !ok {
		return ToolDefinition{}, false
	}
	return c.defs[i], true
}

// Schema returns the compiled input schema for a tool, compiling on first use.
func (c *Catalogue) Schema(name string) (*jsv.Schema, error) {
	if v, ok := c.schemas.Load(name); ok {
		return v.(*jsv.Schema), nil
	}
	d, ok := c.Get(name)
	if !ok {
		return nil, fmt.Errorf("Schema: unknown tool %q", name)
	}
	sch, err := CompileSchema(d)
	if err != nil {
		return nil, err
	}
	c.schemas.Store(name, sch)
	return sch, nil
}

// CompileAll compiles every schema once. Used at startup as a self-check.
func (c *Catalogue) CompileAll() error {
	for _, d := range c.defs {
		if _, err := c.Schema(d.Name); err != nil {
			return err
		}
	}
	return nil
}
