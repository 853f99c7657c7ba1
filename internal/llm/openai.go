package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	hsotel "github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
)

var tracer = hsotel.Tracer("github.com/CogitoSoftwareOrg/hackseeker/internal/llm")

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client *openai.Client
	name   string
}

// NewOpenAIProvider creates a provider for api.openai.com.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey), name: "openai"}
}

// NewOpenAIProviderWithBaseURL creates a provider for a compatible endpoint
// such as https://api.x.ai. baseURL is scheme+host; /v1 is appended.
func NewOpenAIProviderWithBaseURL(name, apiKey, baseURL string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"
	return &OpenAIProvider{client: openai.NewClientWithConfig(config), name: name}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Generate sends a chat completion request and maps tool calls back.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(
			hsotel.GenAISystem.String(p.name),
			hsotel.GenAIRequestModel.String(req.Model),
			hsotel.GenAIRequestTemperature.Float64(req.Temperature),
			hsotel.GenAIRequestMaxTokens.Int(req.MaxTokens),
			hsotel.GenAIRequestToolCount.Int(len(req.Tools)),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutLLMCall)
	defer cancel()

	chatReq, err := toChatRequest(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return nil, &UpstreamError{Provider: p.name, Op: "chat completion", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &UpstreamError{Provider: p.name, Op: "chat completion", Err: ErrNoChoices}
	}

	choice := resp.Choices[0]
	calls, err := fromToolCalls(choice.Message.ToolCalls)
	if err != nil {
		span.RecordError(err)
		return nil, &UpstreamError{Provider: p.name, Op: "decoding tool calls", Err: err}
	}

	span.SetAttributes(
		hsotel.GenAIUsageInputTokens.Int(resp.Usage.PromptTokens),
		hsotel.GenAIUsageOutputTokens.Int(resp.Usage.CompletionTokens),
		hsotel.GenAIResponseFinishReason.String(string(choice.FinishReason)),
		hsotel.GenAIResponseToolCalls.Int(len(calls)),
	)
	RecordCost(ctx, p.EstimateCost(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens), p.name, req.Model)

	return &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
		ToolCalls:    calls,
	}, nil
}

// Stream opens a streaming completion. Tools in req are ignored: streamed
// calls are always toolless.
func (p *OpenAIProvider) Stream(ctx context.Context, req *Request) (Stream, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.stream",
		trace.WithAttributes(
			hsotel.GenAISystem.String(p.name),
			hsotel.GenAIRequestModel.String(req.Model),
		))

	ctx, cancel := context.WithTimeout(ctx, TimeoutLLMStream)

	toolless := *req
	toolless.Tools = nil
	chatReq, err := toChatRequest(&toolless)
	if err != nil {
		cancel()
		span.End()
		return nil, err
	}
	chatReq.Stream = true

	s, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		cancel()
		span.RecordError(err)
		span.SetStatus(codes.Error, "opening stream failed")
		span.End()
		return nil, &UpstreamError{Provider: p.name, Op: "chat completion stream", Err: err}
	}
	return &openAIStream{stream: s, cancel: cancel, span: span, provider: p.name}, nil
}

type openAIStream struct {
	stream   *openai.ChatCompletionStream
	cancel   context.CancelFunc
	span     trace.Span
	provider string
	deltas   int
	closed   bool
}

func (s *openAIStream) Recv() (string, error) {
	for {
		chunk, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			s.span.RecordError(err)
			return "", &UpstreamError{Provider: s.provider, Op: "reading stream", Err: err}
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.deltas++
		return chunk.Choices[0].Delta.Content, nil
	}
}

func (s *openAIStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.stream.Close()
	s.cancel()
	s.span.SetAttributes(hsotel.GenAIResponseFinishReason.String("stream_closed"))
	s.span.End()
	return err
}

func toChatRequest(req *Request) (openai.ChatCompletionRequest, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		m := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				return openai.ChatCompletionRequest{}, fmt.Errorf("encoding arguments of tool call %s: %w", tc.ID, err)
			}
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:       tc.ID,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: tc.Name, Arguments: string(args)},
			})
		}
		messages[i] = m
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	for _, t := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if len(chatReq.Tools) > 0 {
		chatReq.ToolChoice = "auto"
	}
	if req.JSONOutput {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return chatReq, nil
}

func fromToolCalls(in []openai.ToolCall) ([]ToolCall, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]ToolCall, 0, len(in))
	for _, tc := range in {
		if tc.Type != "" && tc.Type != openai.ToolTypeFunction {
			continue
		}
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("tool call %s (%s): %w", tc.ID, tc.Function.Name, err)
			}
		}
		out = append(out, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return out, nil
}

// EstimateCost estimates the cost in USD for the given model and token counts.
func (p *OpenAIProvider) EstimateCost(model string, inputTokens, outputTokens int) float64 {
	type pricing struct {
		input  float64
		output float64
	}

	// USD per 1K tokens.
	prices := map[string]pricing{
		"grok-4-1-fast":               {input: 0.0002, output: 0.0005},
		"grok-4-1-fast-non-reasoning": {input: 0.0002, output: 0.0005},
		"grok-4-fast":                 {input: 0.0002, output: 0.0005},
		"gpt-4o":                      {input: 0.0025, output: 0.01},
		"gpt-4o-mini":                 {input: 0.00015, output: 0.0006},
	}

	pr, ok := prices[model]
	if !ok {
		pr = prices["gpt-4o"]
	}
	return float64(inputTokens)/1000*pr.input + float64(outputTokens)/1000*pr.output
}
