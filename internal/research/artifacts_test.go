package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/llm"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/testutil"
)

const bakeryExtraction = `{
  "quotes": [{"content": "We bin a sack of flour every week", "author": "marta_bakes"}],
  "insights": [{"content": "Small bakeries over-order flour to avoid stockouts"}],
  "competitors": [{"name": "FlourFlow", "description": "Inventory app for bakeries", "links": ["https://flourflow.example"]}],
  "hacks": [{"description": "A shared spreadsheet of weekly orders"}]
}`

func TestExtract_ParsesEvidence(t *testing.T) {
	p := &testutil.ScriptedProvider{Responses: []*llm.Response{{Content: "```json\n" + bakeryExtraction + "\n```"}}}
	e, err := NewExtractor(p, "fast-model")
	require.NoError(t, err)

	x, err := e.Extract(context.Background(), "# Forum thread\nflour waste")
	require.NoError(t, err)
	require.Len(t, x.Quotes, 1)
	assert.Equal(t, "marta_bakes", x.Quotes[0].Author)
	require.Len(t, x.Competitors, 1)
	assert.Equal(t, []string{"https://flourflow.example"}, x.Competitors[0].Links)

	req := p.LastRequest()
	require.NotNil(t, req)
	assert.True(t, req.JSONOutput)
	assert.Equal(t, "fast-model", req.Model)
	assert.Contains(t, req.Messages[1].Content, "flour waste")
}

func TestExtract_RejectsOffSchemaAnswer(t *testing.T) {
	cases := map[string]string{
		"not json":       "nothing useful here",
		"missing lists":  `{"quotes": []}`,
		"quote w/o text": `{"quotes": [{"author": "x"}], "insights": [], "competitors": [], "hacks": []}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			e, err := NewExtractor(&testutil.MockProvider{Content: content}, "m")
			require.NoError(t, err)
			_, err = e.Extract(context.Background(), "page")
			assert.ErrorIs(t, err, ErrInvalidExtraction)
		})
	}
}

func TestExtraction_Artifacts(t *testing.T) {
	p := &testutil.MockProvider{Content: bakeryExtraction}
	e, err := NewExtractor(p, "m")
	require.NoError(t, err)
	x, err := e.Extract(context.Background(), "page")
	require.NoError(t, err)

	page := Result{Title: "r/Baking", URL: "https://reddit.example/r/baking/1"}
	arts := x.Artifacts(page, "bakery flour waste")
	require.Len(t, arts, 4)

	assert.Equal(t, ArtifactQuote, arts[0].Type)
	assert.Equal(t, "Quote from r/Baking", arts[0].Title)
	assert.Equal(t, `"We bin a sack of flour every week" by marta_bakes`, arts[0].Content)
	assert.Equal(t, ArtifactInsight, arts[1].Type)
	assert.Equal(t, "Competitor FlourFlow", arts[2].Title)
	assert.Contains(t, arts[2].Content, "Links: https://flourflow.example")
	assert.Equal(t, ArtifactHack, arts[3].Type)

	text := arts[0].Text()
	assert.Contains(t, text, "(https://reddit.example/r/baking/1)")
	assert.Contains(t, text, "Search query: bakery flour waste")
}
