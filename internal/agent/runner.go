// Package agent runs one conversational turn end to end: it configures the
// mode, assembles the budgeted context, drives the model and tool loop and
// finalizes the assistant message with exactly one charge.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/agent/tools"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/assembler"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/chat"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/llm"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/mode"
	hsotel "github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/pain"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/requestctx"
)

var tracer = hsotel.Tracer("github.com/CogitoSoftwareOrg/hackseeker/internal/agent")

// ErrMissingChat is returned when a chat mode runs without a chat id.
var ErrMissingChat = errors.New("chat id is required")

// ChatStore persists the messages around a chat run.
type ChatStore interface {
	PrepareMessages(ctx context.Context, userID, chatID, query string) (*chat.Prepared, error)
	Finalize(ctx context.Context, messageID, content string, status chat.MessageStatus) error
}

// Ledger checks and debits credits.
type Ledger interface {
	EnsureFunds(ctx context.Context, userID string) error
	Charge(ctx context.Context, userID string, amount int64, reason, reference string) (int64, error)
}

// Drafts is the pain draft collaborator of document runs.
type Drafts interface {
	GetOwned(ctx context.Context, userID, id string) (*pain.Draft, error)
	AttachDocument(ctx context.Context, id string, doc pain.Document, html string) (*pain.Draft, error)
}

// Command is one run request.
type Command struct {
	Mode       mode.Mode
	UserID     string
	ChatID     string
	SubjectIDs []string
	// Query is the user's latest message.
	Query string
	// Tools are merged with the mode's built-in tools.
	Tools []tools.Definition
}

// Result is the outcome of a completed run.
type Result struct {
	Text          string
	MessageID     string
	CorrelationID string
	Iterations    int
	ModelCalls    int
	Pool          memory.Pool
	History       []llm.Message
}

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Provider  llm.Provider
	Model     string
	Router    *mode.Router
	Assembler *assembler.Assembler
	Chats     ChatStore
	Ledger    Ledger
	Drafts    Drafts
	// ChargeAmount is debited once per finalized run. Zero defaults to 1.
	ChargeAmount int64
	Failures     *ToolFailureTracker
	// FinalizeTimeout bounds persistence and billing after a run ends,
	// including runs whose context was cancelled. Zero defaults to 10s.
	FinalizeTimeout time.Duration
	Temperature     float64
	MaxTokens       int
}

// Runner executes commands. It holds no per-run state and is safe for
// concurrent use.
type Runner struct {
	cfg RunnerConfig
}

// NewRunner returns a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.ChargeAmount == 0 {
		cfg.ChargeAmount = 1
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 10 * time.Second
	}
	return &Runner{cfg: cfg}
}

// prepared is a run that passed every precondition and is ready to loop.
type prepared struct {
	cmd           Command
	modeCfg       mode.Config
	correlationID string
	messageID     string
	state         RunState
	registry      *tools.Registry
	loop          *Loop
}

func (p *prepared) logFields(e *zerolog.Event) {
	e.Str("correlation_id", p.correlationID).
		Str("user_id", p.cmd.UserID).
		Str("chat_id", p.cmd.ChatID).
		Str("mode", string(p.cmd.Mode.Name()))
}

// prepare checks funds, configures the mode, stores the chat messages and
// assembles the context. The returned context carries the correlation id.
func (r *Runner) prepare(ctx context.Context, cmd Command) (context.Context, *prepared, error) {
	if cmd.Mode == nil {
		cmd.Mode = mode.Discovery{}
	}
	p := &prepared{cmd: cmd, correlationID: "corr_" + uuid.New().String()[:12]}
	ctx = requestctx.SetCorrelationID(ctx, p.correlationID)
	ctx = requestctx.SetUserID(ctx, cmd.UserID)

	if err := r.cfg.Ledger.EnsureFunds(ctx, cmd.UserID); err != nil {
		return ctx, nil, err
	}

	p.modeCfg = r.cfg.Router.Configure(cmd.Mode)
	reg, err := tools.NewRegistry(append(append([]tools.Definition(nil), p.modeCfg.Tools...), cmd.Tools...)...)
	if err != nil {
		return ctx, nil, fmt.Errorf("building tool registry: %w", err)
	}
	p.registry = reg

	if !p.modeCfg.Document {
		if cmd.ChatID == "" {
			return ctx, nil, ErrMissingChat
		}
		msgs, err := r.cfg.Chats.PrepareMessages(ctx, cmd.UserID, cmd.ChatID, cmd.Query)
		if err != nil {
			return ctx, nil, fmt.Errorf("preparing messages: %w", err)
		}
		p.messageID = msgs.AI.ID
	}

	assembled, err := r.cfg.Assembler.Assemble(ctx, assembler.ForMode(p.modeCfg, cmd.UserID, cmd.ChatID, cmd.Query, cmd.SubjectIDs...))
	if err != nil {
		r.abandon(ctx, p, err)
		return ctx, nil, err
	}

	p.state = RunState{
		SystemPrompt: p.modeCfg.SystemPrompt,
		History:      assembled.History,
		Pool:         assembled.Pool,
		DynamicArgs:  map[string]any{tools.ArgUserID: cmd.UserID, tools.ArgChatID: cmd.ChatID},
		UserID:       cmd.UserID,
	}
	p.loop = NewLoop(LoopConfig{
		Provider:      r.cfg.Provider,
		Model:         r.cfg.Model,
		MaxIterations: p.modeCfg.MaxIterations,
		Temperature:   r.cfg.Temperature,
		MaxTokens:     r.cfg.MaxTokens,
		Failures:      r.cfg.Failures,
	})
	return ctx, p, nil
}

// Run executes cmd to a complete answer. A failed run marks the assistant
// placeholder failed and is not charged.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	ctx, span := tracer.Start(ctx, "agent.run")
	defer span.End()

	ctx, p, err := r.prepare(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "preparation failed")
		return nil, err
	}
	span.SetAttributes(hsotel.RunAttributes(p.correlationID, cmd.UserID, cmd.ChatID, string(p.cmd.Mode.Name()))...)
	log.Info().Func(hsotel.LogTraceFields(ctx)).Func(p.logFields).Msg("agent_run_started")

	res, err := p.loop.Run(ctx, p.state, p.registry)
	if err != nil {
		recordIterations(ctx, 0, string(p.cmd.Mode.Name()), true)
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		r.abandon(ctx, p, err)
		return nil, err
	}
	recordIterations(ctx, res.Iterations, string(p.cmd.Mode.Name()), false)

	if p.messageID != "" {
		if err := r.cfg.Chats.Finalize(ctx, p.messageID, res.FinalText, chat.StatusFinal); err != nil {
			return nil, fmt.Errorf("finalizing message: %w", err)
		}
	}
	r.charge(ctx, p)

	log.Info().Func(p.logFields).Int("iterations", res.Iterations).Int("model_calls", res.ModelCalls).Msg("agent_run_completed")
	return &Result{
		Text:          res.FinalText,
		MessageID:     p.messageID,
		CorrelationID: p.correlationID,
		Iterations:    res.Iterations,
		ModelCalls:    res.ModelCalls,
		Pool:          res.Pool,
		History:       res.History,
	}, nil
}

// abandon marks the placeholder of a run that never reached its terminal
// phase as failed.
func (r *Runner) abandon(ctx context.Context, p *prepared, cause error) {
	log.Warn().Err(cause).Func(p.logFields).Msg("agent_run_failed")
	if p.messageID == "" {
		return
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.FinalizeTimeout)
	defer cancel()
	if err := r.cfg.Chats.Finalize(fctx, p.messageID, "", chat.StatusFailed); err != nil {
		log.Error().Err(err).Str("message_id", p.messageID).Msg("mark_message_failed")
	}
}

// charge debits the run. Billing failures are logged; the answer has
// already been delivered.
func (r *Runner) charge(ctx context.Context, p *prepared) {
	reason, reference := "chat_message", p.messageID
	if p.modeCfg.Document {
		reason, reference = string(p.cmd.Mode.Name()), mode.Subject(p.cmd.Mode)
	}
	ctx, span := tracer.Start(ctx, "agent.charge", trace.WithAttributes(hsotel.CorrelationID.String(p.correlationID)))
	defer span.End()
	balance, err := r.cfg.Ledger.Charge(ctx, p.cmd.UserID, r.cfg.ChargeAmount, reason, reference)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Func(p.logFields).Msg("charge_failed")
		return
	}
	log.Debug().Func(p.logFields).Int64("balance", balance).Msg("run_charged")
}
