package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/agent/tools"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/assembler"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/llm"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
	hsotel "github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
)

// State is a step of the loop state machine.
type State int

// Loop states.
const (
	StateIterating State = iota
	StateToolExecuting
	StateTerminal
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIterating:
		return "iterating"
	case StateToolExecuting:
		return "tool_executing"
	case StateTerminal:
		return "terminal"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// RunState is threaded through every iteration. The loop never mutates the
// caller's slices; it builds new ones.
type RunState struct {
	// SystemPrompt may contain the knowledge placeholder; it is re-rendered
	// with the current pool before every model call.
	SystemPrompt string
	History      []llm.Message
	Pool         memory.Pool
	DynamicArgs  map[string]any
	UserID       string
}

// RunResult is the terminal output of the loop.
type RunResult struct {
	FinalText string
	// History is the input history followed by the loop's own turns and the
	// final assistant answer.
	History    []llm.Message
	Pool       memory.Pool
	Iterations int
	ModelCalls int
	ToolCalls  []string
}

// LoopConfig tunes a Loop.
type LoopConfig struct {
	Provider      llm.Provider
	Model         string
	MaxIterations int
	Temperature   float64
	MaxTokens     int
	Failures      *ToolFailureTracker
	// Observe, when set, is called on every state transition.
	Observe func(State)
}

// Loop drives model calls and tool execution until a toolless answer.
type Loop struct {
	cfg LoopConfig
}

// NewLoop returns a Loop. MaxIterations below 1 is raised to 1.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 1
	}
	return &Loop{cfg: cfg}
}

// emitFunc receives terminal output. A nil emitFunc means the caller wants
// the whole answer at once.
type emitFunc func(chunk string) error

// Run executes the loop to a complete answer.
func (l *Loop) Run(ctx context.Context, st RunState, reg *tools.Registry) (*RunResult, error) {
	return l.drive(ctx, st, reg, nil)
}

// RunStreaming executes the loop and hands terminal output to emit as it is
// produced. Emit errors abort the run.
func (l *Loop) RunStreaming(ctx context.Context, st RunState, reg *tools.Registry, emit func(string) error) (*RunResult, error) {
	return l.drive(ctx, st, reg, emit)
}

func (l *Loop) drive(ctx context.Context, st RunState, reg *tools.Registry, emit emitFunc) (*RunResult, error) {
	res := &RunResult{Pool: st.Pool}
	var turns []llm.Message

	fail := func(err error) (*RunResult, error) {
		l.observe(StateFailed)
		return nil, err
	}

	for iter := 1; ; iter++ {
		l.observe(StateIterating)
		res.Iterations = iter
		withTools := iter <= l.cfg.MaxIterations && reg.Len() > 0

		req := &llm.Request{
			Model:       l.cfg.Model,
			Messages:    l.messages(st, res.Pool, turns),
			Temperature: l.cfg.Temperature,
			MaxTokens:   l.cfg.MaxTokens,
		}
		if !withTools {
			res.ModelCalls++
			text, err := l.final(ctx, req, iter, emit)
			if err != nil {
				return fail(err)
			}
			return l.terminal(res, st, turns, text), nil
		}
		req.Tools = reg.Specs()

		resp, err := l.call(ctx, req, iter)
		res.ModelCalls++
		if err != nil {
			return fail(err)
		}
		if len(resp.ToolCalls) == 0 {
			if emit != nil && resp.Content != "" {
				if err := emit(resp.Content); err != nil {
					return fail(err)
				}
			}
			return l.terminal(res, st, turns, resp.Content), nil
		}

		l.observe(StateToolExecuting)
		turns = append(turns, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, tc := range resp.ToolCalls {
			out, err := l.execute(ctx, st, reg, tc, res.Pool, iter)
			if err != nil {
				return fail(err)
			}
			res.Pool = out.Pool
			res.ToolCalls = append(res.ToolCalls, tc.Name)
			turns = append(turns, llm.Message{Role: llm.RoleTool, Content: out.Content, ToolCallID: tc.ID})
		}
	}
}

func (l *Loop) observe(s State) {
	if l.cfg.Observe != nil {
		l.cfg.Observe(s)
	}
}

// messages rebuilds the model input: the rendered system prompt, the history
// and the turns of this run so far.
func (l *Loop) messages(st RunState, pool memory.Pool, turns []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, 1+len(st.History)+len(turns))
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: assembler.Render(st.SystemPrompt, pool)})
	out = append(out, llm.CloneMessages(st.History)...)
	out = append(out, llm.CloneMessages(turns)...)
	return out
}

func (l *Loop) terminal(res *RunResult, st RunState, turns []llm.Message, text string) *RunResult {
	l.observe(StateTerminal)
	hist := llm.CloneMessages(st.History)
	hist = append(hist, turns...)
	hist = append(hist, llm.Message{Role: llm.RoleAssistant, Content: text})
	res.FinalText = text
	res.History = hist
	return res
}

func (l *Loop) call(ctx context.Context, req *llm.Request, iter int) (*llm.Response, error) {
	ctx, span := tracer.Start(ctx, "agent.iteration", trace.WithAttributes(
		hsotel.Iteration.Int(iter),
		hsotel.GenAIRequestModel.String(req.Model),
		hsotel.GenAIRequestToolCount.Int(len(req.Tools)),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, llm.TimeoutLLMCall)
	defer cancel()
	resp, err := l.cfg.Provider.Generate(callCtx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		return nil, upstream(l.cfg.Provider, "generate", err)
	}
	span.SetAttributes(
		hsotel.GenAIUsageInputTokens.Int(resp.InputTokens),
		hsotel.GenAIUsageOutputTokens.Int(resp.OutputTokens),
		hsotel.GenAIResponseToolCalls.Int(len(resp.ToolCalls)),
	)
	return resp, nil
}

// final makes the toolless terminal call, streamed through emit when set.
func (l *Loop) final(ctx context.Context, req *llm.Request, iter int, emit emitFunc) (string, error) {
	if emit == nil {
		resp, err := l.call(ctx, req, iter)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}

	ctx, span := tracer.Start(ctx, "agent.final_stream", trace.WithAttributes(
		hsotel.Iteration.Int(iter),
		hsotel.GenAIRequestModel.String(req.Model),
	))
	defer span.End()

	streamCtx, cancel := context.WithTimeout(ctx, llm.TimeoutLLMStream)
	defer cancel()
	stream, err := l.cfg.Provider.Stream(streamCtx, req)
	if err != nil {
		span.RecordError(err)
		return "", upstream(l.cfg.Provider, "stream", err)
	}
	defer func() { _ = stream.Close() }()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			span.SetAttributes(attribute.Int("agent.stream_bytes", b.Len()))
			return b.String(), nil
		}
		if err != nil {
			span.RecordError(err)
			return b.String(), upstream(l.cfg.Provider, "stream", err)
		}
		if err := emit(chunk); err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
	}
}

func (l *Loop) execute(ctx context.Context, st RunState, reg *tools.Registry, tc llm.ToolCall, pool memory.Pool, iter int) (tools.Result, error) {
	ctx, span := tracer.Start(ctx, "agent.tool", trace.WithAttributes(
		hsotel.ToolName.String(tc.Name),
		hsotel.Iteration.Int(iter),
	))
	defer span.End()

	if _, err := reg.Resolve(tc.Name); err != nil {
		span.RecordError(err)
		log.Warn().Str("tool", tc.Name).Int("iteration", iter).Msg("unknown_tool_requested")
		return tools.Result{}, err
	}
	out, err := reg.Invoke(ctx, tc.Name, st.DynamicArgs, tc.Arguments, pool)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool failed")
		l.cfg.Failures.Record(tc.Name, st.UserID, err)
		return tools.Result{}, fmt.Errorf("tool %s: %w", tc.Name, err)
	}
	log.Debug().Func(hsotel.LogTraceFields(ctx)).Str("tool", tc.Name).Int("iteration", iter).Msg("tool_executed")
	return out, nil
}

// upstream marks provider failures; cancellation passes through untouched.
func upstream(p llm.Provider, op string, err error) error {
	if errors.Is(err, llm.ErrUpstream) || errors.Is(err, context.Canceled) {
		return err
	}
	return &llm.UpstreamError{Provider: p.Name(), Op: op, Err: err}
}
