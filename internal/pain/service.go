package pain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/billing"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/budget"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
	hsotel "github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/render"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/research"
)

// Charge reasons recorded on the ledger.
const (
	ReasonValidation     = "validation_start"
	ReasonArtifactSearch = "artifact_search"
)

var (
	// ErrResearchDisabled is returned by SearchArtifacts when no web search
	// or extraction collaborator is configured.
	ErrResearchDisabled = errors.New("artifact research is not configured")
	// ErrNoQueries is returned when a draft has no research queries to run,
	// or a selected query index does not exist.
	ErrNoQueries = errors.New("draft has no such research queries")
)

// Ledger is the billing collaborator.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int64, error)
	EnsureFunds(ctx context.Context, userID string) error
	Charge(ctx context.Context, userID string, amount int64, reason, reference string) (int64, error)
}

// QueryGenerator produces research queries for a draft prompt.
type QueryGenerator interface {
	Generate(ctx context.Context, prompt string) []research.Query
}

// MemoryWriter stores artifact memories.
type MemoryWriter interface {
	Put(ctx context.Context, entries ...memory.Entry) ([]memory.Item, error)
}

// Screener refuses artifact text that must not reach a prompt.
type Screener interface {
	Screen(ctx context.Context, text string) error
}

// WebSearcher finds pages for a research query.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]research.Result, error)
}

// EvidenceExtractor pulls structured evidence out of a page.
type EvidenceExtractor interface {
	Extract(ctx context.Context, markdown string) (research.Extraction, error)
}

// Service runs draft workflows that sit outside the agent loop.
type Service struct {
	store   *Store
	ledger  Ledger
	queries QueryGenerator
	memory  MemoryWriter
	screen  Screener
	search  WebSearcher
	extract EvidenceExtractor
	limit   int
	charge  int64
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Store   *Store
	Ledger  Ledger
	Queries QueryGenerator
	Memory  MemoryWriter
	// Screen, when set, vets artifact text before it is stored.
	Screen Screener
	// Search and Extract enable SearchArtifacts.
	Search  WebSearcher
	Extract EvidenceExtractor
	// SearchLimit is the pages fetched per query. Zero defaults to
	// research.DefaultSearchLimit.
	SearchLimit int
	// ChargeAmount is debited once per validation start, and per fetched
	// page slot of an artifact search.
	ChargeAmount int64
}

// NewService returns a Service.
func NewService(cfg ServiceConfig) *Service {
	charge := cfg.ChargeAmount
	if charge <= 0 {
		charge = 1
	}
	limit := cfg.SearchLimit
	if limit <= 0 {
		limit = research.DefaultSearchLimit
	}
	return &Service{
		store: cfg.Store, ledger: cfg.Ledger, queries: cfg.Queries, memory: cfg.Memory, screen: cfg.Screen,
		search: cfg.Search, extract: cfg.Extract, limit: limit, charge: charge,
	}
}

// Store returns the underlying draft store.
func (s *Service) Store() *Store { return s.store }

// StartValidation moves the draft into validation, generates its research
// queries and charges the user once.
func (s *Service) StartValidation(ctx context.Context, userID, painID string) (*Draft, error) {
	ctx, span := tracer.Start(ctx, "pain.start_validation")
	defer span.End()
	span.SetAttributes(hsotel.UserID.String(userID))

	if _, err := s.store.GetOwned(ctx, userID, painID); err != nil {
		return nil, err
	}
	if err := s.ledger.EnsureFunds(ctx, userID); err != nil {
		return nil, err
	}
	d, err := s.store.SetStatus(ctx, painID, StatusValidation)
	if err != nil {
		return nil, fmt.Errorf("starting validation: %w", err)
	}

	generated := s.queries.Generate(ctx, d.Prompt())
	queries := make([]Query, len(generated))
	for i, q := range generated {
		queries[i] = Query{Query: q.Query, Type: string(q.Type)}
	}
	d, err = s.store.SetQueries(ctx, painID, queries)
	if err != nil {
		return nil, fmt.Errorf("storing research queries: %w", err)
	}

	if _, err := s.ledger.Charge(ctx, userID, s.charge, ReasonValidation, painID); err != nil {
		log.Error().Err(err).Str("pain_id", painID).Msg("validation_charge_failed")
	}
	log.Info().Str("pain_id", painID).Int("queries", len(queries)).Msg("validation_started")
	return d, nil
}

// AddArtifact stores content, stripped of markup, as artifact memory of the
// draft. Validation runs search it.
func (s *Service) AddArtifact(ctx context.Context, userID, painID, content string) (memory.Item, error) {
	d, err := s.store.GetOwned(ctx, userID, painID)
	if err != nil {
		return memory.Item{}, err
	}
	text := render.PlainText(content)
	if strings.TrimSpace(text) == "" {
		return memory.Item{}, fmt.Errorf("artifact for %s has no text", painID)
	}
	if s.screen != nil {
		if err := s.screen.Screen(ctx, text); err != nil {
			return memory.Item{}, err
		}
	}
	stored, err := s.memory.Put(ctx, memory.Entry{
		Item: memory.Item{
			Kind:       memory.KindArtifact,
			Content:    text,
			TokenCost:  budget.EstimateTokens(text),
			Importance: memory.ImportanceMedium,
		},
		Scope: memory.Scope{UserID: userID, ChatID: d.ChatID, PainID: painID},
	})
	if err != nil {
		return memory.Item{}, fmt.Errorf("storing artifact: %w", err)
	}
	log.Info().Str("pain_id", painID).Int("tokens", stored[0].TokenCost).Msg("artifact_added")
	return stored[0], nil
}

// SearchCost is what searching n queries of a draft costs.
func (s *Service) SearchCost(n int) int64 {
	return s.charge * int64(s.limit) * int64(n)
}

type foundPage struct {
	query string
	page  research.Result
}

// SearchArtifacts runs the selected research queries of a draft (all of them
// when selected is empty), extracts evidence from every page found and stores
// it as artifact memory of the draft. The user must hold more credits than the
// search costs; the cost is charged once after every query was searched.
// Pages whose extraction fails and evidence refused by the screener are
// skipped.
func (s *Service) SearchArtifacts(ctx context.Context, userID, painID string, selected []int) ([]memory.Item, error) {
	ctx, span := tracer.Start(ctx, "pain.search_artifacts")
	defer span.End()
	span.SetAttributes(hsotel.UserID.String(userID))

	if s.search == nil || s.extract == nil {
		return nil, ErrResearchDisabled
	}
	d, err := s.store.GetOwned(ctx, userID, painID)
	if err != nil {
		return nil, err
	}
	queries, err := pick(d.Queries, selected)
	if err != nil {
		return nil, err
	}
	cost := s.SearchCost(len(queries))
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance <= cost {
		return nil, fmt.Errorf("%w: search of %d queries costs %d, balance %d", billing.ErrInsufficientBalance, len(queries), cost, balance)
	}

	var pages []foundPage
	for _, q := range queries {
		results, err := s.search.Search(ctx, q.Query, s.limit)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("searching artifacts: %w", err)
		}
		for _, r := range results {
			pages = append(pages, foundPage{query: q.Query, page: r})
		}
	}

	var entries []memory.Entry
	for _, p := range pages {
		x, err := s.extract.Extract(ctx, p.page.Markdown)
		if err != nil {
			log.Warn().Err(err).Str("pain_id", painID).Str("url", p.page.URL).Msg("artifact_extraction_skipped")
			continue
		}
		for _, a := range x.Artifacts(p.page, p.query) {
			text := render.PlainText(a.Text())
			if s.screen != nil {
				if err := s.screen.Screen(ctx, text); err != nil {
					log.Warn().Err(err).Str("pain_id", painID).Str("url", a.Source).Msg("artifact_refused")
					continue
				}
			}
			entries = append(entries, memory.Entry{
				Item: memory.Item{
					Kind:       memory.KindArtifact,
					Type:       string(a.Type),
					Content:    text,
					TokenCost:  budget.EstimateTokens(text),
					Importance: memory.ImportanceMedium,
				},
				Scope: memory.Scope{UserID: userID, ChatID: d.ChatID, PainID: painID},
			})
		}
	}

	var stored []memory.Item
	if len(entries) > 0 {
		if stored, err = s.memory.Put(ctx, entries...); err != nil {
			return nil, fmt.Errorf("storing artifacts: %w", err)
		}
	}
	if _, err := s.ledger.Charge(ctx, userID, cost, ReasonArtifactSearch, painID); err != nil {
		log.Error().Err(err).Str("pain_id", painID).Msg("artifact_search_charge_failed")
	}
	log.Info().Str("pain_id", painID).Int("queries", len(queries)).Int("pages", len(pages)).
		Int("artifacts", len(stored)).Int64("cost", cost).Msg("artifacts_searched")
	return stored, nil
}

func pick(all []Query, selected []int) ([]Query, error) {
	if len(all) == 0 {
		return nil, ErrNoQueries
	}
	if len(selected) == 0 {
		return all, nil
	}
	out := make([]Query, 0, len(selected))
	seen := make(map[int]bool, len(selected))
	for _, i := range selected {
		if i < 0 || i >= len(all) {
			return nil, fmt.Errorf("%w: index %d of %d", ErrNoQueries, i, len(all))
		}
		if !seen[i] {
			seen[i] = true
			out = append(out, all[i])
		}
	}
	return out, nil
}
