// Package llm talks to an OpenAI-compatible chat completions endpoint
// with function-calling enabled.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"affinityops/internal/logging"
)

// Client is the completion surface the agent loop depends on.
type Client interface {
	Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (*Completion, error)
}

// Config holds the connection settings for an OpenAI-compatible endpoint.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// DefaultConfig returns sensible defaults for the OpenAI API.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:     apiKey,
		BaseURL:    "https://api.openai.com/v1",
		Model:      "gpt-4o",
		Timeout:    2 * time.Minute,
		MaxRetries: 3,
	}
}

// OpenAIClient implements Client against any OpenAI-compatible provider.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	maxRetries  int
	backoffBase time.Duration
	httpClient  *http.Client
}

// NewClient creates a client with default settings.
func NewClient(apiKey string) *OpenAIClient {
	return NewClientWithConfig(DefaultConfig(apiKey))
}

// NewClientWithConfig creates a client with custom settings.
func NewClientWithConfig(config Config) *OpenAIClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	return &OpenAIClient{
		apiKey:      config.APIKey,
		baseURL:     config.BaseURL,
		model:       config.Model,
		maxRetries:  config.MaxRetries,
		backoffBase: time.Second,
		httpClient:  &http.Client{Timeout: config.Timeout},
	}
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string { return c.model }

// Complete sends the conversation and tool catalog and returns the
// assistant's next message. Transport failures, 429s and 5xx responses
// are retried with exponential backoff; other errors return immediately.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (*Completion, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.1,
	}
	for _, tool := range tools {
		reqBody.Tools = append(reqBody.Tools, wireTool{Type: "function", Function: tool})
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	startTime := time.Now()
	logging.LLMDebug("completion request: model=%s messages=%d tools=%d", c.model, len(messages), len(tools))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(attempt-1)) * c.backoffBase):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
			logging.LLMDebug("retryable status %d on attempt %d", resp.StatusCode, attempt+1)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var parsed chatResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if parsed.Error != nil {
			return nil, fmt.Errorf("API error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return nil, fmt.Errorf("no completion returned")
		}

		choice := parsed.Choices[0]
		logging.LLM("completion in %v: finish=%s tool_calls=%d",
			time.Since(startTime), choice.FinishReason, len(choice.Message.ToolCalls))
		return &Completion{Message: choice.Message, FinishReason: choice.FinishReason}, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
