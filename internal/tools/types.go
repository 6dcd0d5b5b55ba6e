// Package tools defines the CRM tool catalog exposed to the model.
//
// Each tool is a named, schema-described operation against the Affinity
// workspace. The registry validates arguments before execution, and the
// dispatcher guarantees that every failure (unknown tool, bad arguments,
// API error, even a panicking handler) comes back as a structured
// {"error": ...} result instead of crashing the conversation.
package tools

import (
	"context"
	"fmt"

	"affinityops/internal/llm"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments.
// This enables LLM tool calling with proper validation.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution. The returned value is
// serialized to JSON for the model.
type ExecuteFunc func(ctx context.Context, args map[string]any) (any, error)

// Tool is one operation the model may invoke.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does, for the model.
	Description string

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Definition converts the tool to the wire shape advertised to the model.
func (t *Tool) Definition() llm.ToolDefinition {
	properties := make(map[string]any, len(t.Schema.Properties))
	for name, prop := range t.Schema.Properties {
		properties[name] = prop
	}
	required := t.Schema.Required
	if required == nil {
		required = []string{}
	}
	return llm.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Result is the JSON output for the model.
	Result string

	// Error is set if the tool failed.
	Error error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil
}

// stringArg extracts a required string argument.
func stringArg(tool string, args map[string]any, name string) (string, error) {
	raw, ok := args[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingRequiredArg, name)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s.%s must be a string", ErrInvalidArgType, tool, name)
	}
	return s, nil
}

// optionalStringArg extracts a string argument, empty when absent.
func optionalStringArg(tool string, args map[string]any, name string) (string, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s.%s must be a string", ErrInvalidArgType, tool, name)
	}
	return s, nil
}

// int64Arg extracts a required integer argument. JSON numbers arrive as
// float64; whole values are accepted, fractional ones are not.
func int64Arg(tool string, args map[string]any, name string) (int64, error) {
	raw, ok := args[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingRequiredArg, name)
	}
	switch v := raw.(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%w: %s.%s must be an integer", ErrInvalidArgType, tool, name)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: %s.%s must be an integer", ErrInvalidArgType, tool, name)
	}
}
