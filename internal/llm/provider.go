// Package llm defines the model provider contract used by the agent loop and
// an OpenAI-compatible implementation (OpenAI or xAI Grok endpoints).
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Timeouts for provider calls. Streams get a longer ceiling because they
// stay open while the consumer reads.
const (
	TimeoutLLMCall   = 60 * time.Second
	TimeoutLLMStream = 5 * time.Minute
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

var (
	// ErrUpstream marks failures of the model provider (network, rate limit,
	// malformed answer). The loop never retries them.
	ErrUpstream = errors.New("upstream provider error")
	// ErrNoChoices is returned when the provider answers without any choice.
	ErrNoChoices = errors.New("no choices returned")
)

// UpstreamError wraps a provider failure with the provider name and operation.
type UpstreamError struct {
	Provider string
	Op       string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstream, e.Err} }

// Provider is the model collaborator.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "xai").
	Name() string
	// Generate runs one completion, optionally offering tools.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// Stream runs one toolless completion and yields text deltas.
	Stream(ctx context.Context, req *Request) (Stream, error)
	// EstimateCost estimates the cost in USD for the given model and token counts.
	EstimateCost(model string, inputTokens, outputTokens int) float64
}

// Stream is a finite, non-restartable sequence of text deltas. Recv returns
// io.EOF after the last delta. Close may be called at any time.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Request is one completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Tools       []Tool
	// JSONOutput asks the provider for a JSON object answer.
	JSONOutput bool
}

// Message is one conversation turn.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// Tool is a function definition offered to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Response is one completion answer.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
	ToolCalls    []ToolCall
}

// ToolCall is a model request to run a registered tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// CloneMessages returns a copy of msgs that shares no slices with the input.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if len(m.ToolCalls) > 0 {
			out[i].ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		}
	}
	return out
}
