package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"affinityops/internal/llm"
	"affinityops/internal/logging"
)

// Definitions returns the wire-shape catalog advertised to the model.
func (c *Catalog) Definitions() []llm.ToolDefinition {
	return c.registry.Definitions()
}

// Dispatch runs one model-issued tool call and always returns a JSON
// string for the tool-result message. Failures of any kind (unknown
// tool, malformed arguments, API errors, a panicking handler) come back
// as {"error": "..."} so the model can react; Dispatch never crashes the
// conversation.
func (c *Catalog) Dispatch(ctx context.Context, call llm.ToolCall) (result string, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Tools("tool %s panicked: %v", call.Function.Name, r)
			result = errorResult(fmt.Sprintf("dispatch failure in %s: %v", call.Function.Name, r))
			failed = true
		}
	}()

	name := call.Function.Name
	if !c.registry.Has(name) {
		return errorResult(fmt.Sprintf("unknown tool: %s", name)), true
	}

	args := map[string]any{}
	if raw := call.Function.Arguments; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return errorResult(fmt.Sprintf("%s: arguments are not valid JSON: %v", name, err)), true
		}
	}

	res, err := c.registry.Execute(ctx, name, args)
	if err != nil {
		logging.Tools("tool %s failed: %v", name, err)
		return errorResult(err.Error()), true
	}
	logging.Tools("tool %s ok in %dms", name, res.DurationMs)
	return res.Result, false
}

// marshalResult serializes a handler's return value for the model. A nil
// result (a 204 from the API) becomes an empty object.
func marshalResult(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to serialize tool result: %v", err))
	}
	return string(data)
}

func errorResult(msg string) string {
	data, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		// Marshalling a map of strings cannot fail; keep a fallback anyway.
		return `{"error":"internal serialization failure"}`
	}
	return string(data)
}
