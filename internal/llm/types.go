package llm

// Message is one turn of a chat conversation in the OpenAI wire shape.
// Assistant messages carrying tool calls must be appended to the history
// exactly as received, so the upstream provider can match tool results
// against its own call ids.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-issued request to run one tool. Arguments is the
// raw JSON string exactly as the model produced it.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its arguments as unparsed JSON.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition advertises one callable tool to the model. Parameters is
// a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Completion is the assistant's reply to one chat request. When ToolCalls
// on the message is non-empty the model wants tools run before it will
// produce an answer.
type Completion struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// chatRequest is the /chat/completions request body.
type chatRequest struct {
	Model       string     `json:"model"`
	Messages    []Message  `json:"messages"`
	Tools       []wireTool `json:"tools,omitempty"`
	Temperature float64    `json:"temperature"`
	MaxTokens   int        `json:"max_tokens,omitempty"`
}

// wireTool wraps a ToolDefinition in the provider's function envelope.
type wireTool struct {
	Type     string         `json:"type"`
	Function ToolDefinition `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}
