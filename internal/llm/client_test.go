package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClientWithConfig(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "test-model"})
	client.backoffBase = time.Millisecond
	return client
}

func TestCompleteMissingKeyFailsBeforeNetwork(t *testing.T) {
	requests := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { requests++ })
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClientWithConfig(Config{BaseURL: srv.URL, Model: "test-model"})
	if _, err := client.Complete(context.Background(), nil, nil); err == nil {
		t.Fatal("expected an error without an API key")
	}
	if requests != 0 {
		t.Errorf("made %d requests without a key, want 0", requests)
	}
}

func TestCompleteSendsToolsInFunctionEnvelope(t *testing.T) {
	var captured map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}]}`))
	})
	client := newTestClient(t, handler)

	tools := []ToolDefinition{{
		Name:        "find_lists",
		Description: "Find lists by name.",
		Parameters:  map[string]any{"type": "object"},
	}}
	completion, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hello"}}, tools)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if completion.Message.Content != "hi" {
		t.Errorf("content = %q", completion.Message.Content)
	}

	wireTools, ok := captured["tools"].([]any)
	if !ok || len(wireTools) != 1 {
		t.Fatalf("tools = %v, want one entry", captured["tools"])
	}
	entry := wireTools[0].(map[string]any)
	if entry["type"] != "function" {
		t.Errorf("tool type = %v, want function", entry["type"])
	}
	fn := entry["function"].(map[string]any)
	if fn["name"] != "find_lists" {
		t.Errorf("tool name = %v", fn["name"])
	}
}

func TestCompleteParsesToolCalls(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"find_company","arguments":"{\"name\":\"acme\"}"}}
		]},"finish_reason":"tool_calls"}]}`))
	})
	client := newTestClient(t, handler)

	completion, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "find acme"}}, nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if completion.FinishReason != "tool_calls" {
		t.Errorf("finish reason = %q", completion.FinishReason)
	}
	if len(completion.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(completion.Message.ToolCalls))
	}
	call := completion.Message.ToolCalls[0]
	if call.ID != "call_1" || call.Function.Name != "find_company" {
		t.Errorf("unexpected call: %+v", call)
	}
	if call.Function.Arguments != `{"name":"acme"}` {
		t.Errorf("arguments = %q, want raw JSON preserved", call.Function.Arguments)
	}
}

func TestCompleteRetriesRateLimitThenSucceeds(t *testing.T) {
	requests := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	})
	client := newTestClient(t, handler)

	completion, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if completion.Message.Content != "ok" {
		t.Errorf("content = %q", completion.Message.Content)
	}
	if requests != 3 {
		t.Errorf("made %d requests, want 3", requests)
	}
}

func TestCompleteClientErrorNotRetried(t *testing.T) {
	requests := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	})
	client := newTestClient(t, handler)

	if _, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil); err == nil {
		t.Fatal("expected an error")
	}
	if requests != 1 {
		t.Errorf("made %d requests, want 1", requests)
	}
}

func TestCompleteServerErrorExhaustsRetries(t *testing.T) {
	requests := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadGateway)
	})
	client := newTestClient(t, handler)

	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if requests != 4 { // initial attempt plus three retries
		t.Errorf("made %d requests, want 4", requests)
	}
}
