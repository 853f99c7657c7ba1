// Package testutil provides model provider mocks for agent, research and
// server tests.
package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/llm"
)

// MockProvider answers every Generate with Content and every Stream with
// Chunks (or Content as one chunk when Chunks is empty).
type MockProvider struct {
	ProviderName string
	Content      string
	Chunks       []string
	Err          error // returned by Generate and Stream
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Generate returns the canned answer.
func (m *MockProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	content := m.Content
	if content == "" {
		content = "mock response from " + m.Name()
	}
	return &llm.Response{Content: content, FinishReason: "stop", InputTokens: 10, OutputTokens: 20, Model: req.Model}, nil
}

// Stream returns the canned chunks.
func (m *MockProvider) Stream(_ context.Context, _ *llm.Request) (llm.Stream, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	chunks := m.Chunks
	if len(chunks) == 0 {
		chunks = []string{m.Content}
	}
	return NewSliceStream(chunks...), nil
}

// EstimateCost returns a fixed cost.
func (m *MockProvider) EstimateCost(_ string, _, _ int) float64 { return 0.001 }

// ScriptedProvider replays a sequence of responses for agent loop tests.
// Call N of Generate gets Responses[N], or the last one once the script runs
// out. Streams replay StreamChunks. Requests of both kinds are recorded.
type ScriptedProvider struct {
	mu sync.Mutex

	Responses    []*llm.Response
	StreamChunks []string
	// ErrOnCall (1-based) makes that Generate call fail with Err.
	ErrOnCall int
	Err       error
	// StreamErr fails Stream itself; StreamErrAfter fails Recv after the chunks.
	StreamErr      error
	StreamErrAfter error
	// Block, when set, is waited on by every Generate before answering.
	Block chan struct{}

	CallCount   int
	StreamCount int
	Requests    []*llm.Request
	Streams     []*SliceStream
}

// Name returns "scripted".
func (p *ScriptedProvider) Name() string { return "scripted" }

// Generate returns the next scripted response.
func (p *ScriptedProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if p.Block != nil {
		select {
		case <-p.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCount++
	p.Requests = append(p.Requests, cloneRequest(req))
	if p.ErrOnCall > 0 && p.CallCount == p.ErrOnCall && p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) == 0 {
		return &llm.Response{Content: "no responses configured", FinishReason: "stop", Model: req.Model}, nil
	}
	idx := min(p.CallCount-1, len(p.Responses)-1)
	out := *p.Responses[idx]
	out.ToolCalls = append([]llm.ToolCall(nil), out.ToolCalls...)
	return &out, nil
}

// Stream returns a stream over StreamChunks.
func (p *ScriptedProvider) Stream(_ context.Context, req *llm.Request) (llm.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StreamCount++
	p.Requests = append(p.Requests, cloneRequest(req))
	if p.StreamErr != nil {
		return nil, p.StreamErr
	}
	s := NewSliceStream(p.StreamChunks...)
	s.Tail = p.StreamErrAfter
	p.Streams = append(p.Streams, s)
	return s, nil
}

// EstimateCost returns a fixed cost.
func (p *ScriptedProvider) EstimateCost(_ string, _, _ int) float64 { return 0.001 }

// Calls returns the Generate and Stream call counts.
func (p *ScriptedProvider) Calls() (generate, stream int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CallCount, p.StreamCount
}

// LastRequest returns the most recent request of either kind.
func (p *ScriptedProvider) LastRequest() *llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Requests) == 0 {
		return nil
	}
	return p.Requests[len(p.Requests)-1]
}

func cloneRequest(req *llm.Request) *llm.Request {
	c := *req
	c.Messages = llm.CloneMessages(req.Messages)
	c.Tools = append([]llm.Tool(nil), req.Tools...)
	return &c
}

// SliceStream is an llm.Stream over fixed chunks.
type SliceStream struct {
	mu     sync.Mutex
	chunks []string
	next   int
	closed bool
	// Tail is returned instead of io.EOF once the chunks are drained.
	Tail error
}

// NewSliceStream returns a stream yielding chunks in order.
func NewSliceStream(chunks ...string) *SliceStream {
	return &SliceStream{chunks: chunks}
}

// Recv returns the next chunk, then Tail or io.EOF.
func (s *SliceStream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", io.EOF
	}
	if s.next >= len(s.chunks) {
		if s.Tail != nil {
			return "", s.Tail
		}
		return "", io.EOF
	}
	c := s.chunks[s.next]
	s.next++
	return c, nil
}

// Close marks the stream closed.
func (s *SliceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *SliceStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
