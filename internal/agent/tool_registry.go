package agent

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolRegistry holds the tools available to a turn, with their argument
// schemas compiled once at construction.
type ToolRegistry struct {
	order   []string
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewToolRegistry builds a registry from the given tools. A duplicate tool
// name or an uncompilable argument schema fails construction; the loop never
// has to deal with either at runtime.
func NewToolRegistry(tools ...Tool) (*ToolRegistry, error) {
	r := &ToolRegistry{
		tools:   make(map[string]Tool, len(tools)),
		schemas: make(map[string]*jsonschema.Schema, len(tools)),
	}
	for _, tool := range tools {
		name := tool.Name()
		if name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", name)
		}
		schema, err := jsonschema.CompileString(name+".schema.json", string(tool.Schema()))
		if err != nil {
			return nil, fmt.Errorf("compile schema for tool %s: %w", name, err)
		}
		r.order = append(r.order, name)
		r.tools[name] = tool
		r.schemas[name] = schema
	}
	return r, nil
}

// Get returns the tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Schema returns the compiled argument schema for a registered tool.
func (r *ToolRegistry) Schema(name string) (*jsonschema.Schema, bool) {
	schema, ok := r.schemas[name]
	return schema, ok
}

// List returns the tools in registration order.
func (r *ToolRegistry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	return len(r.order)
}
