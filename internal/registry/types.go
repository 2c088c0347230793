package registry

import (
	"bytes"
	"encoding/json"
)

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	String  ParamType = "string"
	Number  ParamType = "number"
	Object  ParamType = "object"
	Array   ParamType = "array"
	Boolean ParamType = "boolean"
)

// ParameterSpec describes one argument of a tool.
type ParameterSpec struct {
	Name        string
	Type        ParamType
	Description string
	Optional    bool
	Enum        []string
}

// ToolDefinition is one entry of the discovery catalogue.
// Defined statically by the request builders and never mutated.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []ParameterSpec // declaration order is kept in listings
}

// Param returns a required parameter.
func Param(name string, typ ParamType, description string) ParameterSpec {
	return ParameterSpec{Name: name, Type: typ, Description: description}
}

// OptionalParam returns an optional parameter.
func OptionalParam(name string, typ ParamType, description string) ParameterSpec {
	return ParameterSpec{Name: name, Type: typ, Description: description, Optional: true}
}

// WithEnum restricts a string parameter to the given values.
func (p ParameterSpec) WithEnum(values ...string) ParameterSpec {
	p.Enum = values
	return p
}

type paramJSON struct {
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Optional    bool      `json:"optional,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
}

// MarshalJSON renders the listing shape
// {"name", "description", "parameters": {"<param>": {"type", "description", "optional"}}}
// keeping parameters in declaration order.
func (d ToolDefinition) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"name":`)
	if err := writeValue(&buf, d.Name); err != nil {
		return nil, err
	}
	buf.WriteString(`,"description":`)
	if err := writeValue(&buf, d.Description); err != nil {
		return nil, err
	}
	buf.WriteString(`,"parameters":{`)
	for i, p := range d.Parameters {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(&buf, p.Name); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeValue(&buf, paramJSON{
			Type:        p.Type,
			Description: p.Description,
			Optional:    p.Optional,
			Enum:        p.Enum,
		}); err != nil {
			return nil, err
		}
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
