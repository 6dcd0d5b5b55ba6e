// Package agent runs the conversation loop: it sends the history to the
// model, executes whatever tools the model calls, feeds the results back,
// and repeats until the model produces a plain answer or the turn budget
// runs out.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"affinityops/internal/llm"
	"affinityops/internal/logging"
	"affinityops/internal/tools"
)

// DefaultMaxTurns bounds one Run. A turn is one model completion plus the
// tool executions it requested.
const DefaultMaxTurns = 10

const defaultSystemPrompt = `You are an assistant for managing an Affinity CRM workspace.
Use the provided tools to look up companies and lists, create records,
attach notes, and update list fields. Resolve names to ids with the
lookup tools before writing. When a tool returns an error, read it,
correct the call if you can, and tell the user plainly when you cannot.
Answer in concise prose once the work is done.`

// TraceEvent records one tool execution inside a run.
type TraceEvent struct {
	ID        uuid.UUID
	Tool      string
	Arguments string
	Result    string
	IsError   bool
	Duration  time.Duration
}

// Result is the outcome of one Run.
type Result struct {
	// Text is the model's final answer, or a turn-budget notice when the
	// loop was cut off mid-task.
	Text string

	// Messages is the conversation after the run, without the system
	// prompt. Pass it back as history to continue the session.
	Messages []llm.Message

	// Trace lists every tool execution in order.
	Trace []TraceEvent

	// Turns is the number of model completions consumed.
	Turns int
}

// Config adjusts the loop.
type Config struct {
	SystemPrompt string
	MaxTurns     int
}

// DefaultConfig returns the standard loop settings.
func DefaultConfig() Config {
	return Config{SystemPrompt: defaultSystemPrompt, MaxTurns: DefaultMaxTurns}
}

// Agent drives the model/tool loop for one workspace.
type Agent struct {
	client       llm.Client
	catalog      *tools.Catalog
	systemPrompt string
	maxTurns     int
}

// New builds an agent with default settings.
func New(client llm.Client, catalog *tools.Catalog) *Agent {
	return NewWithConfig(client, catalog, DefaultConfig())
}

// NewWithConfig builds an agent with custom settings.
func NewWithConfig(client llm.Client, catalog *tools.Catalog, cfg Config) *Agent {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	return &Agent{
		client:       client,
		catalog:      catalog,
		systemPrompt: cfg.SystemPrompt,
		maxTurns:     cfg.MaxTurns,
	}
}

// Run processes one user input on top of the given history and returns
// when the model answers in plain text or the turn budget is exhausted.
// Tool calls execute sequentially in the order the model issued them,
// and every result, success or structured error, goes back to the
// model, so a failed call never aborts the loop.
func (a *Agent) Run(ctx context.Context, history []llm.Message, input string) (*Result, error) {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: a.systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: input})

	definitions := a.catalog.Definitions()
	result := &Result{}

	for turn := 1; turn <= a.maxTurns; turn++ {
		result.Turns = turn
		logging.AgentDebug("turn %d/%d: %d messages", turn, a.maxTurns, len(messages))

		completion, err := a.client.Complete(ctx, messages, definitions)
		if err != nil {
			return nil, fmt.Errorf("completion failed on turn %d: %w", turn, err)
		}

		// The assistant message goes into the history exactly as
		// received; the provider matches tool results by its call ids.
		messages = append(messages, completion.Message)

		if len(completion.Message.ToolCalls) == 0 {
			result.Text = completion.Message.Content
			result.Messages = messages[1:]
			logging.Agent("run finished in %d turn(s), %d tool call(s)", turn, len(result.Trace))
			return result, nil
		}

		for _, toolCall := range completion.Message.ToolCalls {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			started := time.Now()
			toolResult, failed := a.catalog.Dispatch(ctx, toolCall)
			event := TraceEvent{
				ID:        uuid.New(),
				Tool:      toolCall.Function.Name,
				Arguments: toolCall.Function.Arguments,
				Result:    toolResult,
				IsError:   failed,
				Duration:  time.Since(started),
			}
			result.Trace = append(result.Trace, event)
			logging.Agent("tool %s (%s) error=%v in %v", event.Tool, event.ID, failed, event.Duration)

			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    toolResult,
				ToolCallID: toolCall.ID,
			})
		}
	}

	result.Text = fmt.Sprintf("[Max turns (%d) reached]", a.maxTurns)
	result.Messages = messages[1:]
	logging.Agent("run hit the turn budget (%d) with %d tool call(s)", a.maxTurns, len(result.Trace))
	return result, nil
}
