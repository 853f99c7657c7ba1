// Package research generates web-search queries that validation uses to look
// for evidence of a pain.
package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/llm"
	hsotel "github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
)

var tracer = hsotel.Tracer("github.com/CogitoSoftwareOrg/hackseeker/internal/research")

// QueryType is the research intent of a query.
type QueryType string

// Query types.
const (
	TypeProblemDiscovery    QueryType = "problemDiscovery"
	TypeSolutionTools       QueryType = "solutionTools"
	TypeDIYHacks            QueryType = "diyHacks"
	TypeComparisonListicles QueryType = "comparisonListicles"
	TypeCommunityPain       QueryType = "communityPain"
	TypeCommunitySolutions  QueryType = "communitySolutions"
	TypeLaunchExamples      QueryType = "launchExamples"
	TypeGeneral             QueryType = "general"
)

// QueryTypes lists every type in schema order.
var QueryTypes = []QueryType{
	TypeProblemDiscovery, TypeSolutionTools, TypeDIYHacks, TypeComparisonListicles,
	TypeCommunityPain, TypeCommunitySolutions, TypeLaunchExamples, TypeGeneral,
}

// Query is one search query.
type Query struct {
	Query string    `json:"query"`
	Type  QueryType `json:"type"`
}

const systemPrompt = `You are a market research expert. Your task is to generate strategic search queries for validating business pain points.

Given information about a pain point (segment, problem, job-to-be-done, keywords), generate 5-8 diverse search queries designed to find:

1. **problemDiscovery** - Queries to find people discussing this problem online (forums, Reddit, communities)
2. **solutionTools** - Queries to find existing tools/products solving similar problems
3. **diyHacks** - Queries to find workarounds, spreadsheets, or manual solutions people use
4. **comparisonListicles** - Queries to find "best X tools" or comparison articles
5. **communityPain** - Queries for community discussions about frustrations with current solutions
6. **communitySolutions** - Queries for community-shared solutions or recommendations
7. **launchExamples** - Queries to find similar product launches or case studies

Generate queries that would work well on search engines and return relevant results. Make them specific enough to find valuable content but broad enough to return results.

Each query should be a natural search phrase, not a keyword list.

Answer with a JSON object {"queries": [{"query": string, "type": string}]}.`

var answerSchema = gojsonschema.NewGoLoader(map[string]any{
	"type":     "object",
	"required": []any{"queries"},
	"properties": map[string]any{
		"queries": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []any{"query", "type"},
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "minLength": 1},
					"type":  map[string]any{"type": "string", "enum": typeEnum()},
				},
			},
		},
	},
})

func typeEnum() []any {
	out := make([]any, len(QueryTypes))
	for i, t := range QueryTypes {
		out[i] = string(t)
	}
	return out
}

var errInvalidAnswer = errors.New("answer does not match query schema")

// QueryGenerator asks a fast model for search queries.
type QueryGenerator struct {
	provider llm.Provider
	model    string
	schema   *gojsonschema.Schema
}

// NewQueryGenerator returns a generator using model on provider.
func NewQueryGenerator(provider llm.Provider, model string) (*QueryGenerator, error) {
	schema, err := gojsonschema.NewSchema(answerSchema)
	if err != nil {
		return nil, fmt.Errorf("compiling query schema: %w", err)
	}
	return &QueryGenerator{provider: provider, model: model, schema: schema}, nil
}

// Generate returns queries for the pain described by prompt. It never fails:
// any provider or parsing problem yields one general query equal to prompt.
func (g *QueryGenerator) Generate(ctx context.Context, prompt string) []Query {
	ctx, span := tracer.Start(ctx, "research.generate_queries",
		trace.WithAttributes(hsotel.GenAIRequestModel.String(g.model)))
	defer span.End()

	queries, err := g.generate(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Str("model", g.model).Msg("query_generation_fallback")
		return []Query{{Query: prompt, Type: TypeGeneral}}
	}
	span.SetAttributes(attribute.Int("research.queries", len(queries)))
	log.Info().Int("queries", len(queries)).Msg("queries_generated")
	return queries
}

func (g *QueryGenerator) generate(ctx context.Context, prompt string) ([]Query, error) {
	ctx, cancel := context.WithTimeout(ctx, llm.TimeoutLLMCall)
	defer cancel()

	resp, err := g.provider.Generate(ctx, &llm.Request{
		Model: g.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: "Generate search queries for validating this pain point:\n\n" + prompt},
		},
		JSONOutput: true,
	})
	if err != nil {
		return nil, err
	}
	return g.parse(resp.Content)
}

func (g *QueryGenerator) parse(content string) ([]Query, error) {
	content = StripCodeFence(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty answer", errInvalidAnswer)
	}
	res, err := g.schema.Validate(gojsonschema.NewStringLoader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidAnswer, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", errInvalidAnswer, strings.Join(msgs, "; "))
	}
	var answer struct {
		Queries []Query `json:"queries"`
	}
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		return nil, fmt.Errorf("decoding queries: %w", err)
	}
	return answer.Queries, nil
}

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n?(.*?)\\n?```$")

// StripCodeFence removes a markdown code fence wrapping the whole answer.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}
