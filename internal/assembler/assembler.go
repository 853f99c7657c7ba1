// Package assembler builds the context of a run: the trimmed conversation
// history and the memory pool gathered from the per-kind collaborators under
// the allocated budgets.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/budget"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/llm"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/mode"
	hsotel "github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
)

var tracer = hsotel.Tracer("github.com/CogitoSoftwareOrg/hackseeker/internal/assembler")

var (
	// ErrBudgetViolation is returned when a collaborator hands back more
	// tokens than it was asked for.
	ErrBudgetViolation = errors.New("memory collaborator exceeded its budget")
	// ErrPrecondition is returned when a mode needs exactly one subject draft
	// and there is none or more than one.
	ErrPrecondition = errors.New("run precondition failed")
)

// BudgetViolationError details a collaborator contract breach.
type BudgetViolationError struct {
	Category  budget.Category
	Requested int
	Returned  int
}

func (e *BudgetViolationError) Error() string {
	return fmt.Sprintf("%s search returned %d tokens for a budget of %d", e.Category, e.Returned, e.Requested)
}

func (e *BudgetViolationError) Unwrap() error { return ErrBudgetViolation }

// Searcher is a per-kind memory search collaborator.
type Searcher interface {
	Search(ctx context.Context, query string, limit int, scope memory.Scope) ([]memory.Item, error)
}

// HistorySource returns a chat's conversation, oldest first.
type HistorySource interface {
	History(ctx context.Context, chatID string) ([]llm.Message, error)
}

// FactSource returns drafts as static memory facts.
type FactSource interface {
	StaticFacts(ctx context.Context, chatID string, activeOnly bool) ([]memory.Item, error)
	SubjectFacts(ctx context.Context, ids []string) ([]memory.Item, error)
}

// Config wires an Assembler.
type Config struct {
	History  HistorySource
	Facts    FactSource
	Profile  Searcher
	Event    Searcher
	Artifact Searcher
	Policy   budget.Policy
	// TotalTokens is the budget split by Policy when a request sets none.
	TotalTokens  int
	RecentWindow time.Duration
	Now          func() time.Time
}

// Assembler is read-only with respect to persisted state.
type Assembler struct {
	cfg Config
}

// New returns an Assembler.
func New(cfg Config) *Assembler {
	if cfg.TotalTokens <= 0 {
		cfg.TotalTokens = budget.DefaultTotalTokens
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 7 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Assembler{cfg: cfg}
}

// Request describes one assembly.
type Request struct {
	Categories      []budget.Category
	Static          mode.StaticScope
	RequiresSubject bool
	UserID          string
	ChatID          string
	// SubjectIDs names the subject drafts; for the active scope it narrows
	// the chat's drafts under validation.
	SubjectIDs []string
	Query      string
	// TotalTokens overrides the configured total when positive.
	TotalTokens int
}

// ForMode fills the mode-dependent fields of a request from cfg.
func ForMode(cfg mode.Config, userID, chatID, query string, subjectIDs ...string) Request {
	if s := mode.Subject(cfg.Mode); s != "" && len(subjectIDs) == 0 {
		subjectIDs = []string{s}
	}
	return Request{
		Categories:      slices.Clone(cfg.Categories),
		Static:          cfg.Static,
		RequiresSubject: cfg.RequiresSubject,
		UserID:          userID,
		ChatID:          chatID,
		SubjectIDs:      subjectIDs,
		Query:           query,
	}
}

// Context is the assembled input of a run.
type Context struct {
	History    []llm.Message
	Pool       memory.Pool
	Subject    string
	Allocation budget.Allocation
}

// Assemble trims history and gathers memory in the order static, profile,
// event, artifact. Every search result is checked against its budget.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Context, error) {
	ctx, span := tracer.Start(ctx, "context.assemble", trace.WithAttributes(
		hsotel.UserID.String(req.UserID),
		hsotel.ChatID.String(req.ChatID),
	))
	defer span.End()

	total := req.TotalTokens
	if total <= 0 {
		total = a.cfg.TotalTokens
	}
	alloc := a.cfg.Policy.Allocate(total, req.Categories)
	out := &Context{Allocation: alloc}

	if _, ok := alloc[budget.CategoryHistory]; ok && a.cfg.History != nil {
		hist, err := a.cfg.History.History(ctx, req.ChatID)
		if err != nil {
			return nil, fmt.Errorf("loading history: %w", err)
		}
		out.History = TrimHistory(hist, alloc.Get(budget.CategoryHistory))
	}

	static, subject, err := a.static(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out.Subject = subject
	pool := memory.NewPool(static...)

	if limit, ok := alloc[budget.CategoryProfile]; ok && req.UserID != "" {
		items, err := a.search(ctx, a.cfg.Profile, budget.CategoryProfile, req.Query, limit, memory.Scope{UserID: req.UserID})
		if err != nil {
			return nil, err
		}
		pool = pool.With(items...)
	}

	var events []memory.Item
	if limit, ok := alloc[budget.CategoryEventAllTime]; ok && req.ChatID != "" {
		items, err := a.search(ctx, a.cfg.Event, budget.CategoryEventAllTime, req.Query, limit, memory.Scope{ChatID: req.ChatID})
		if err != nil {
			return nil, err
		}
		events = append(events, items...)
	}
	if limit, ok := alloc[budget.CategoryEventRecent]; ok && req.ChatID != "" {
		since := a.cfg.Now().Add(-a.cfg.RecentWindow)
		items, err := a.search(ctx, a.cfg.Event, budget.CategoryEventRecent, req.Query, limit, memory.Scope{ChatID: req.ChatID, Since: since})
		if err != nil {
			return nil, err
		}
		events = append(events, items...)
	}
	pool = pool.With(memory.Dedupe(events)...)

	if limit, ok := alloc[budget.CategoryArtifact]; ok {
		if subject == "" {
			err := fmt.Errorf("%w: artifact memory needs a single subject draft", ErrPrecondition)
			span.RecordError(err)
			return nil, err
		}
		items, err := a.search(ctx, a.cfg.Artifact, budget.CategoryArtifact, req.Query, limit, memory.Scope{UserID: req.UserID, PainID: subject})
		if err != nil {
			return nil, err
		}
		pool = pool.With(items...)
	}

	out.Pool = pool
	span.SetAttributes(
		attribute.Int("context.history_turns", len(out.History)),
		attribute.Int("context.pool_items", pool.Len()),
	)
	log.Debug().
		Str("chat_id", req.ChatID).
		Int("history_turns", len(out.History)).
		Int("static", len(pool.Items(memory.KindStatic))).
		Int("profile", len(pool.Items(memory.KindProfile))).
		Int("event", len(pool.Items(memory.KindEvent))).
		Int("artifact", len(pool.Items(memory.KindArtifact))).
		Msg("context_assembled")
	return out, nil
}

// static loads the static facts for the request's scope and resolves the
// single subject when the request needs one.
func (a *Assembler) static(ctx context.Context, req Request) ([]memory.Item, string, error) {
	if a.cfg.Facts == nil {
		if req.RequiresSubject {
			return nil, "", fmt.Errorf("%w: no draft source configured", ErrPrecondition)
		}
		return nil, "", nil
	}

	var items []memory.Item
	var err error
	switch req.Static {
	case mode.StaticSubject:
		if len(req.SubjectIDs) == 0 {
			return nil, "", fmt.Errorf("%w: no subject draft selected", ErrPrecondition)
		}
		items, err = a.cfg.Facts.SubjectFacts(ctx, req.SubjectIDs)
	case mode.StaticActive:
		items, err = a.cfg.Facts.StaticFacts(ctx, req.ChatID, true)
		if err == nil && len(req.SubjectIDs) > 0 {
			items = slices.DeleteFunc(items, func(it memory.Item) bool { return !slices.Contains(req.SubjectIDs, it.ID) })
		}
	default:
		items, err = a.cfg.Facts.StaticFacts(ctx, req.ChatID, false)
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading static facts: %w", err)
	}

	if !req.RequiresSubject {
		return items, "", nil
	}
	switch len(items) {
	case 1:
		return items, items[0].ID, nil
	case 0:
		return nil, "", fmt.Errorf("%w: no active subject draft", ErrPrecondition)
	default:
		return nil, "", fmt.Errorf("%w: %d active subject drafts, need exactly one", ErrPrecondition, len(items))
	}
}

func (a *Assembler) search(ctx context.Context, s Searcher, c budget.Category, query string, limit int, scope memory.Scope) ([]memory.Item, error) {
	if s == nil || limit <= 0 {
		return nil, nil
	}
	items, err := s.Search(ctx, query, limit, scope)
	if err != nil {
		return nil, fmt.Errorf("searching %s memory: %w", c, err)
	}
	if got := budget.Total(items, memory.Cost); got > limit {
		err := &BudgetViolationError{Category: c, Requested: limit, Returned: got}
		log.Error().Err(err).Str("category", string(c)).Msg("memory_budget_violation")
		return nil, err
	}
	return items, nil
}

// TrimHistory keeps the most recent turns whose summed cost fits limit and
// returns them oldest first.
func TrimHistory(hist []llm.Message, limit int) []llm.Message {
	return budget.TrimRecent(hist, limit, func(m llm.Message) int { return budget.EstimateTokens(m.Content) })
}
