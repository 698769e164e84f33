// Package tools holds the table-agnostic tool catalog and turns tool calls
// into record store operations.
package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTool is returned for a tool name absent from the registry.
var ErrUnknownTool = errors.New("unknown tool")

// ValidationError lists the required arguments a call left out.
type ValidationError struct {
	Tool    string
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %s: missing required argument(s): %s", e.Tool, strings.Join(e.Missing, ", "))
}

// Property describes one input field.
type Property struct {
	Type        string `json:"type" yaml:"type" toml:"type"`
	Description string `json:"description,omitempty" yaml:"description" toml:"description"`
}

// Schema is the JSON Schema subset advertised for tool inputs.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Descriptor is the public shape of a tool as returned by tools/list.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"inputSchema"`
}

func objectSchema(props map[string]Property, required ...string) Schema {
	if props == nil {
		props = map[string]Property{}
	}
	return Schema{Type: "object", Properties: props, Required: required}
}

func (d Descriptor) check() error {
	if d.Name == "" {
		return errors.New("tool name is required")
	}
	for _, f := range d.InputSchema.Required {
		if _, ok := d.InputSchema.Properties[f]; !ok {
			return fmt.Errorf("tool %s: required field %q not declared in properties", d.Name, f)
		}
	}
	return nil
}

// Arguments are the raw tools/call arguments keyed by field name.
type Arguments map[string]json.RawMessage

// ParseArguments decodes a tools/call arguments object. Empty input and null
// yield an empty set.
func ParseArguments(raw json.RawMessage) (Arguments, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return Arguments{}, nil
	}
	var args Arguments
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("arguments must be an object: %w", err)
	}
	if args == nil {
		args = Arguments{}
	}
	return args, nil
}

func (a Arguments) present(name string) bool {
	v, ok := a[name]
	return ok && len(v) > 0 && string(v) != "null"
}

// String returns a string argument. Non-string scalars come back as their
// JSON text so type mismatches reach the record store unchanged.
func (a Arguments) String(name string) string {
	if !a.present(name) {
		return ""
	}
	var s string
	if err := json.Unmarshal(a[name], &s); err == nil {
		return s
	}
	return string(a[name])
}

// validate reports every required field missing from args.
func (d Descriptor) validate(args Arguments) error {
	var missing []string
	for _, f := range d.InputSchema.Required {
		if !args.present(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &ValidationError{Tool: d.Name, Missing: missing}
}
