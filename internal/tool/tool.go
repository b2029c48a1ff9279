// Package tool implements the tool catalog: schema declarations, the
// registry, parameter validation and the dispatch pipeline.
package tool

import "context"

// Category classifies a tool for discovery and error reporting.
type Category string

const (
	CategoryRead     Category = "read"
	CategoryWrite    Category = "write"
	CategoryWorkflow Category = "workflow"
)

// Params is the caller-supplied argument object of a tool invocation,
// decoded from JSON.
type Params map[string]any

// Handler implements a tool's behavior. The returned value is encoded
// as-is into the success envelope.
type Handler func(ctx context.Context, params Params) (any, error)

// Property describes a single field of a tool's input contract.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// InputSchema is the structural input contract of a tool. Validation
// against it is intentionally shallow: required presence, primitive
// type of declared fields, enum membership. Nested objects and array
// items are not described.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Schema is the full descriptor of a tool as exposed by the discovery
// endpoints. Immutable after construction.
type Schema struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// ObjectSchema returns an InputSchema of type "object" with the given
// properties and required field names.
func ObjectSchema(props map[string]Property, required ...string) InputSchema {
	return InputSchema{Type: "object", Properties: props, Required: required}
}

// Metadata is a registry entry binding a tool name to its category,
// schema and handler.
type Metadata struct {
	Name        string
	Category    Category
	Description string
	Schema      Schema
	Handler     Handler
}

// Info is the discovery listing shape for a single tool.
type Info struct {
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
}
