package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// HTTPSearcher queries a web search endpoint that answers
// GET <endpoint>?q=<query>&limit=<n> with {"results": [Result...]}, page
// content already converted to markdown.
type HTTPSearcher struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPSearcher returns a searcher for endpoint. apiKey, when set, is sent
// as a bearer token. A nil client gets a 30s timeout.
func NewHTTPSearcher(endpoint, apiKey string, client *http.Client) *HTTPSearcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSearcher{endpoint: endpoint, apiKey: apiKey, client: client}
}

// Search returns at most limit pages for query.
func (s *HTTPSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "research.web_search")
	defer span.End()

	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.client.Do(req) //nolint:gosec // endpoint comes from operator config
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		span.SetStatus(codes.Error, resp.Status)
		return nil, fmt.Errorf("searching %q: %s: %s", query, resp.Status, body)
	}
	var out struct {
		Results []Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding search results: %w", err)
	}
	if len(out.Results) > limit {
		out.Results = out.Results[:limit]
	}
	span.SetAttributes(attribute.Int("research.results", len(out.Results)))
	return out.Results, nil
}
