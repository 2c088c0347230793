package registry

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	jsv "github.com/santhosh-tekuri/jsonschema/v6"
)

// InputSchema renders the tool's parameters as a JSON Schema object.
func (d ToolDefinition) InputSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(d.Parameters)),
	}
	for _, p := range d.Parameters {
		prop := &jsonschema.Schema{
			Type:        string(p.Type),
			Description: p.Description,
		}
		if len(p.Enum) > 0 {
			prop.Pattern = enumPattern(p.Enum)
			prop.Description += " (one of: " + strings.Join(p.Enum, ", ") + "; case-insensitive)"
		}
		s.Properties[p.Name] = prop
		if !p.Optional {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

// enumPattern matches any of values regardless of case, as dispatch does.
func enumPattern(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = regexp.QuoteMeta(v)
	}
	return "^(?i:" + strings.Join(quoted, "|") + ")$"
}

// SchemaDocument returns InputSchema as a generic JSON document.
func (d ToolDefinition) SchemaDocument() (map[string]any, error) {
	b, err := json.Marshal(d.InputSchema())
	if err != nil {
		return nil, fmt.Errorf("SchemaDocument: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("SchemaDocument: %w", err)
	}
	return doc, nil
}

// CompileSchema compiles the tool's input schema for argument checks.
func CompileSchema(d ToolDefinition) (*jsv.Schema, error) {
	doc, err := d.SchemaDocument()
	if err != nil {
		return nil, err
	}
	url := "mem://tools/" + d.Name + ".json"
	c := jsv.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("CompileSchema %s: %w", d.Name, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("CompileSchema %s: %w", d.Name, err)
	}
	return sch, nil
}

// ValidateArgs checks args against a compiled schema. Values are round-tripped
// through JSON so Go numeric kinds validate the same as decoded input.
func ValidateArgs(sch *jsv.Schema, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("ValidateArgs: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("ValidateArgs: %w", err)
	}
	return sch.Validate(v)
}
