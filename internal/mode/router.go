package mode

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/agent/tools"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/budget"
)

//go:embed prompts.yaml
var promptsYAML []byte

// KnowledgePlaceholder is replaced with the rendered memory pool.
const KnowledgePlaceholder = "{KNOWLEDGE}"

// StaticScope selects which drafts enter the pool as static facts.
type StaticScope int

// Static scopes.
const (
	// StaticChat includes every draft of the chat.
	StaticChat StaticScope = iota
	// StaticActive includes the chat's drafts under validation.
	StaticActive
	// StaticSubject includes only the mode's subject draft.
	StaticSubject
)

// Iteration bounds.
const (
	MaxIterationsDiscovery  = 5
	MaxIterationsValidation = 1
	MaxIterationsDocument   = 1
)

// Toolset holds the built-in tool definitions the router picks from.
type Toolset struct {
	SearchMemories tools.Definition
	SaveMemories   tools.Definition
	CreatePain     tools.Definition
	UpdatePain     tools.Definition
}

// Config is the run configuration of one mode.
type Config struct {
	Mode         Mode
	SystemPrompt string
	// Tools is empty for toolless modes.
	Tools      []tools.Definition
	Categories []budget.Category
	Static     StaticScope
	// RequiresSubject demands exactly one subject draft.
	RequiresSubject bool
	MaxIterations   int
	// Document marks modes whose answer is an HTML document.
	Document bool
}

// Toolless reports whether the mode offers no tools.
func (c Config) Toolless() bool { return len(c.Tools) == 0 }

// Router configures runs per mode.
type Router struct {
	prompts map[Name]string
	tools   Toolset
}

// NewRouter loads the embedded prompt catalog.
func NewRouter(ts Toolset) (*Router, error) {
	prompts, err := LoadPrompts(promptsYAML)
	if err != nil {
		return nil, err
	}
	return &Router{prompts: prompts, tools: ts}, nil
}

// LoadPrompts parses a prompt catalog and checks that every mode has a
// prompt with the knowledge placeholder.
func LoadPrompts(data []byte) (map[Name]string, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing prompt catalog: %w", err)
	}
	out := make(map[Name]string, len(raw))
	for _, n := range []Name{NameDiscovery, NameValidation, NamePdfGeneration, NameLandingGeneration} {
		p, ok := raw[string(n)]
		if !ok || p == "" {
			return nil, fmt.Errorf("prompt catalog has no %s prompt", n)
		}
		if !strings.Contains(p, KnowledgePlaceholder) {
			return nil, fmt.Errorf("%s prompt lacks %s", n, KnowledgePlaceholder)
		}
		out[n] = p
	}
	return out, nil
}

// Configure returns the configuration of m. It has no side effects.
func (r *Router) Configure(m Mode) Config {
	history := []budget.Category{budget.CategoryHistory}
	memory := []budget.Category{budget.CategoryHistory, budget.CategoryProfile, budget.CategoryEventAllTime, budget.CategoryEventRecent}

	switch m.(type) {
	case Discovery:
		return Config{
			Mode:          m,
			SystemPrompt:  r.prompts[NameDiscovery],
			Tools:         []tools.Definition{r.tools.SearchMemories, r.tools.SaveMemories, r.tools.CreatePain, r.tools.UpdatePain},
			Categories:    memory,
			Static:        StaticChat,
			MaxIterations: MaxIterationsDiscovery,
		}
	case Validation:
		return Config{
			Mode:            m,
			SystemPrompt:    r.prompts[NameValidation],
			Tools:           []tools.Definition{r.tools.SearchMemories, r.tools.SaveMemories, r.tools.UpdatePain},
			Categories:      append(memory, budget.CategoryArtifact),
			Static:          StaticActive,
			RequiresSubject: true,
			MaxIterations:   MaxIterationsValidation,
		}
	case PdfGeneration:
		return Config{
			Mode:            m,
			SystemPrompt:    r.prompts[NamePdfGeneration],
			Categories:      history,
			Static:          StaticSubject,
			RequiresSubject: true,
			MaxIterations:   MaxIterationsDocument,
			Document:        true,
		}
	case LandingGeneration:
		return Config{
			Mode:            m,
			SystemPrompt:    r.prompts[NameLandingGeneration],
			Categories:      history,
			Static:          StaticSubject,
			RequiresSubject: true,
			MaxIterations:   MaxIterationsDocument,
			Document:        true,
		}
	}
	panic(fmt.Sprintf("mode: unhandled mode %T", m))
}
