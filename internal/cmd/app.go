package cmd

import (
	"errors"
	"fmt"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/agent"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/agent/tools"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/assembler"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/attachment"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/billing"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/chat"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/config"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/llm"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory/memtools"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/mode"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/pain"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/research"
)

// newProvider builds the model provider from config. Tests replace it.
var newProvider = func(cfg *config.Config) (llm.Provider, error) {
	if err := cfg.RequireLLM(); err != nil {
		return nil, err
	}
	return llm.NewOpenAIProviderWithBaseURL("xai", cfg.LLMAPIKey, cfg.LLMBaseURL), nil
}

// app holds the stores and services of one process. Commands that never
// call the model open it without a provider.
type app struct {
	cfg    *config.Config
	chats  *chat.Store
	ledger *billing.Ledger
	pains  *pain.Store
	memory *memory.Store

	memCfg   memtools.Config
	scanner  *attachment.Scanner
	provider llm.Provider
	service  *pain.Service
	runner   *agent.Runner
}

// openApp loads config and opens every store under the data directory.
func openApp() (a *app, err error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	if a.chats, err = chat.NewStore(cfg.ChatDBPath()); err != nil {
		return nil, fmt.Errorf("opening chat store: %w", err)
	}
	if a.ledger, err = billing.NewLedger(cfg.BillingDBPath(), cfg.InitialCredits); err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	if a.pains, err = pain.NewStore(cfg.PainDBPath()); err != nil {
		return nil, fmt.Errorf("opening pain store: %w", err)
	}
	if a.memory, err = memory.NewStore(cfg.MemoryDBPath()); err != nil {
		return nil, fmt.Errorf("opening memory store: %w", err)
	}

	a.memCfg = memtools.DefaultConfig()
	a.memCfg.Tokens = cfg.ToolMemoryTokens
	a.memCfg.RecentWindow = cfg.RecentWindow
	a.memCfg.Policy = cfg.Policy()

	a.scanner = attachment.NewScanner()
	a.service = pain.NewService(pain.ServiceConfig{
		Store:        a.pains,
		Ledger:       a.ledger,
		Memory:       a.memory,
		Screen:       a.scanner,
		ChargeAmount: cfg.ChargeAmount,
	})
	return a, nil
}

// withLLM connects the model provider and builds the runner and the
// validation service on top of it.
func (a *app) withLLM() error {
	provider, err := newProvider(a.cfg)
	if err != nil {
		return err
	}
	queries, err := research.NewQueryGenerator(provider, a.cfg.LLMFastModel)
	if err != nil {
		return err
	}
	extractor, err := research.NewExtractor(provider, a.cfg.LLMFastModel)
	if err != nil {
		return err
	}
	var web pain.WebSearcher
	if a.cfg.SearchURL != "" {
		web = research.NewHTTPSearcher(a.cfg.SearchURL, a.cfg.SearchAPIKey, nil)
	}
	router, err := mode.NewRouter(mode.Toolset{
		SearchMemories: memtools.Search(a.memory, a.memCfg),
		SaveMemories:   memtools.Save(a.memory),
		CreatePain:     pain.CreateTool(a.pains),
		UpdatePain:     pain.UpdateTool(a.pains),
	})
	if err != nil {
		return fmt.Errorf("loading mode prompts: %w", err)
	}
	asm := assembler.New(assembler.Config{
		History:      a.chats,
		Facts:        a.pains,
		Profile:      a.memory.Searcher(memory.KindProfile),
		Event:        a.memory.Searcher(memory.KindEvent),
		Artifact:     a.memory.Searcher(memory.KindArtifact),
		Policy:       a.cfg.Policy(),
		TotalTokens:  a.cfg.ContextTotalTokens,
		RecentWindow: a.cfg.RecentWindow,
	})

	a.provider = provider
	a.service = pain.NewService(pain.ServiceConfig{
		Store:        a.pains,
		Ledger:       a.ledger,
		Queries:      queries,
		Memory:       a.memory,
		Screen:       a.scanner,
		Search:       web,
		Extract:      extractor,
		SearchLimit:  a.cfg.SearchLimit,
		ChargeAmount: a.cfg.ChargeAmount,
	})
	a.runner = agent.NewRunner(agent.RunnerConfig{
		Provider:     provider,
		Model:        a.cfg.LLMModel,
		Router:       router,
		Assembler:    asm,
		Chats:        a.chats,
		Ledger:       a.ledger,
		Drafts:       a.pains,
		ChargeAmount: a.cfg.ChargeAmount,
		Failures:     agent.NewToolFailureTracker(0, 0),
	})
	return nil
}

// toolRegistry holds the built-in tools offered to MCP clients.
func (a *app) toolRegistry() (*tools.Registry, error) {
	defs := append(memtools.Tools(a.memory, a.memCfg), pain.Tools(a.pains)...)
	return tools.NewRegistry(defs...)
}

// Close closes every opened store.
func (a *app) Close() error {
	var errs []error
	if a.memory != nil {
		errs = append(errs, a.memory.Close())
	}
	if a.pains != nil {
		errs = append(errs, a.pains.Close())
	}
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	if a.chats != nil {
		errs = append(errs, a.chats.Close())
	}
	return errors.Join(errs...)
}
