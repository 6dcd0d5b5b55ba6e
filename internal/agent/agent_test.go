package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"affinityops/internal/affinity"
	"affinityops/internal/llm"
	"affinityops/internal/resolve"
	"affinityops/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClient returns scripted completions and records every request.
type fakeClient struct {
	completions []*llm.Completion
	requests    [][]llm.Message
	err         error
}

func (f *fakeClient) Complete(ctx context.Context, messages []llm.Message, defs []llm.ToolDefinition) (*llm.Completion, error) {
	f.requests = append(f.requests, append([]llm.Message(nil), messages...))
	if f.err != nil {
		return nil, f.err
	}
	if len(f.requests) > len(f.completions) {
		return nil, fmt.Errorf("fake client exhausted after %d completions", len(f.completions))
	}
	return f.completions[len(f.requests)-1], nil
}

func emptyCatalog() *tools.Catalog {
	v1 := affinity.NewV1Client(affinity.V1Config{})
	v2 := affinity.NewV2Client(affinity.V2Config{})
	return tools.NewCatalog(tools.Deps{V1: v1, V2: v2, Resolver: resolve.NewResolver(v1, v2)})
}

func assistantCall(calls ...llm.ToolCall) *llm.Completion {
	return &llm.Completion{
		Message:      llm.Message{Role: "assistant", ToolCalls: calls},
		FinishReason: "tool_calls",
	}
}

func assistantText(text string) *llm.Completion {
	return &llm.Completion{
		Message:      llm.Message{Role: "assistant", Content: text},
		FinishReason: "stop",
	}
}

func toolCall(id, name, arguments string) llm.ToolCall {
	return llm.ToolCall{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: arguments}}
}

func TestRunPlainAnswer(t *testing.T) {
	client := &fakeClient{completions: []*llm.Completion{assistantText("All done.")}}
	a := New(client, emptyCatalog())

	result, err := a.Run(context.Background(), nil, "hello")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Text != "All done." {
		t.Errorf("text = %q", result.Text)
	}
	if result.Turns != 1 || len(result.Trace) != 0 {
		t.Errorf("turns=%d trace=%d, want 1 and 0", result.Turns, len(result.Trace))
	}

	// The request carries system prompt then user input.
	sent := client.requests[0]
	if sent[0].Role != "system" || sent[len(sent)-1].Content != "hello" {
		t.Errorf("unexpected request shape: %+v", sent)
	}
	// Returned history excludes the system prompt.
	if len(result.Messages) != 2 || result.Messages[0].Role != "user" {
		t.Errorf("unexpected history: %+v", result.Messages)
	}
}

func TestRunExecutesToolsSequentiallyInOrder(t *testing.T) {
	catalog := emptyCatalog()
	var order []string
	for _, name := range []string{"first", "second"} {
		catalog.Registry().MustRegister(&tools.Tool{
			Name:        name,
			Description: "records its own execution",
			Execute: func(name string) tools.ExecuteFunc {
				return func(ctx context.Context, args map[string]any) (any, error) {
					order = append(order, name)
					return map[string]any{"ran": name}, nil
				}
			}(name),
		})
	}

	client := &fakeClient{completions: []*llm.Completion{
		assistantCall(
			toolCall("call_a", "first", "{}"),
			toolCall("call_b", "second", "{}"),
		),
		assistantText("done"),
	}}
	a := New(client, catalog)

	result, err := a.Run(context.Background(), nil, "run both")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("execution order = %v", order)
	}
	if result.Turns != 2 || len(result.Trace) != 2 {
		t.Errorf("turns=%d trace=%d, want 2 and 2", result.Turns, len(result.Trace))
	}
	if result.Trace[0].ID == result.Trace[1].ID {
		t.Error("trace events share an id")
	}

	// The second request must contain the assistant message verbatim and
	// one tool result per call, matched by id.
	second := client.requests[1]
	var assistant *llm.Message
	var toolMsgs []llm.Message
	for i := range second {
		switch second[i].Role {
		case "assistant":
			assistant = &second[i]
		case "tool":
			toolMsgs = append(toolMsgs, second[i])
		}
	}
	if assistant == nil || len(assistant.ToolCalls) != 2 {
		t.Fatalf("assistant tool-call message not preserved: %+v", second)
	}
	if len(toolMsgs) != 2 || toolMsgs[0].ToolCallID != "call_a" || toolMsgs[1].ToolCallID != "call_b" {
		t.Errorf("tool results not matched to call ids: %+v", toolMsgs)
	}
}

func TestRunUnknownToolFeedsErrorBack(t *testing.T) {
	client := &fakeClient{completions: []*llm.Completion{
		assistantCall(toolCall("call_x", "no_such_tool", "{}")),
		assistantText("recovered"),
	}}
	a := New(client, emptyCatalog())

	result, err := a.Run(context.Background(), nil, "go")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Text != "recovered" {
		t.Errorf("text = %q", result.Text)
	}
	if len(result.Trace) != 1 || !result.Trace[0].IsError {
		t.Fatalf("expected one failed trace event, got %+v", result.Trace)
	}
	if !strings.Contains(result.Trace[0].Result, "unknown tool") {
		t.Errorf("trace result = %q", result.Trace[0].Result)
	}
}

func TestRunStopsAtTurnBudget(t *testing.T) {
	catalog := emptyCatalog()
	catalog.Registry().MustRegister(&tools.Tool{
		Name:        "spin",
		Description: "never enough",
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"more": true}, nil
		},
	})

	spin := assistantCall(toolCall("call_s", "spin", "{}"))
	client := &fakeClient{completions: []*llm.Completion{spin, spin, spin}}
	a := NewWithConfig(client, catalog, Config{MaxTurns: 3})

	result, err := a.Run(context.Background(), nil, "loop forever")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Turns != 3 {
		t.Errorf("turns = %d, want 3", result.Turns)
	}
	if !strings.Contains(result.Text, "Max turns (3)") {
		t.Errorf("text = %q, want a turn-budget notice", result.Text)
	}
	if len(result.Trace) != 3 {
		t.Errorf("trace has %d events, want the partial trace of 3", len(result.Trace))
	}
}

func TestRunSurfacesCompletionError(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("provider down")}
	a := New(client, emptyCatalog())

	if _, err := a.Run(context.Background(), nil, "hi"); err == nil {
		t.Fatal("expected an error when the completion fails")
	}
}

func TestRunCarriesHistory(t *testing.T) {
	client := &fakeClient{completions: []*llm.Completion{assistantText("again")}}
	a := New(client, emptyCatalog())

	history := []llm.Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	result, err := a.Run(context.Background(), history, "follow-up")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	sent := client.requests[0]
	if len(sent) != 4 || sent[1].Content != "earlier question" || sent[3].Content != "follow-up" {
		t.Errorf("history not carried: %+v", sent)
	}
	if len(result.Messages) != 4 {
		t.Errorf("returned history has %d messages, want 4", len(result.Messages))
	}
}
