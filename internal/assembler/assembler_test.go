package assembler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/budget"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/llm"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/mode"
)

// fakeSearcher returns its items admitted under the limit unless overflow is
// set, in which case it ignores the limit.
type fakeSearcher struct {
	items    []memory.Item
	overflow bool
	calls    []call
}

type call struct {
	limit int
	scope memory.Scope
}

func (f *fakeSearcher) Search(_ context.Context, _ string, limit int, scope memory.Scope) ([]memory.Item, error) {
	f.calls = append(f.calls, call{limit: limit, scope: scope})
	if f.overflow {
		return f.items, nil
	}
	return budget.Admit(f.items, limit, memory.Cost), nil
}

type fakeHistory []llm.Message

func (h fakeHistory) History(context.Context, string) ([]llm.Message, error) { return h, nil }

type fakeFacts struct {
	chat   []memory.Item
	active []memory.Item
}

func (f fakeFacts) StaticFacts(_ context.Context, _ string, activeOnly bool) ([]memory.Item, error) {
	if activeOnly {
		return f.active, nil
	}
	return f.chat, nil
}

func (f fakeFacts) SubjectFacts(_ context.Context, ids []string) ([]memory.Item, error) {
	var out []memory.Item
	for _, it := range append(f.chat, f.active...) {
		for _, id := range ids {
			if it.ID == id {
				out = append(out, it)
			}
		}
	}
	return out, nil
}

func item(k memory.Kind, id, content string, cost int) memory.Item {
	return memory.Item{ID: id, Kind: k, Content: content, TokenCost: cost}
}

var allCategories = []budget.Category{
	budget.CategoryHistory, budget.CategoryProfile, budget.CategoryEventAllTime, budget.CategoryEventRecent, budget.CategoryArtifact,
}

func TestAssemble_BudgetConformance(t *testing.T) {
	profile := &fakeSearcher{items: []memory.Item{
		item(memory.KindProfile, "a", "a", 4), item(memory.KindProfile, "b", "b", 4), item(memory.KindProfile, "c", "c", 4),
	}}
	a := New(Config{Profile: profile, Policy: budget.Policy{HistoryTokens: 0}})

	got, err := a.Assemble(context.Background(), Request{
		Categories:  []budget.Category{budget.CategoryProfile},
		UserID:      "u1",
		TotalTokens: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, profile.calls[0].limit)
	assert.Len(t, got.Pool.Items(memory.KindProfile), 2)
	assert.LessOrEqual(t, got.Pool.Tokens(memory.KindProfile), 10)
}

func TestAssemble_HistoryPrefersRecent(t *testing.T) {
	hist := fakeHistory{
		{Role: llm.RoleUser, Content: "aaaaaaaaaaaa"},
		{Role: llm.RoleAssistant, Content: "bbbbbbbbbbbb"},
		{Role: llm.RoleUser, Content: "cccccccccccc"},
		{Role: llm.RoleAssistant, Content: "dddddddddddd"},
	}
	a := New(Config{History: hist, Policy: budget.Policy{HistoryTokens: 7}})

	got, err := a.Assemble(context.Background(), Request{Categories: []budget.Category{budget.CategoryHistory}})
	require.NoError(t, err)
	require.Len(t, got.History, 2)
	assert.Equal(t, "cccccccccccc", got.History[0].Content)
	assert.Equal(t, "dddddddddddd", got.History[1].Content)
}

func TestAssemble_EventSearchesSplitAndDeduplicate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	event := &fakeSearcher{items: []memory.Item{item(memory.KindEvent, "e1", "same fact", 5)}}
	a := New(Config{Event: event, Policy: budget.DefaultPolicy(), Now: func() time.Time { return now }})

	got, err := a.Assemble(context.Background(), Request{
		Categories: []budget.Category{budget.CategoryEventAllTime, budget.CategoryEventRecent},
		ChatID:     "c1",
	})
	require.NoError(t, err)
	require.Len(t, event.calls, 2)
	assert.Equal(t, 2500, event.calls[0].limit)
	assert.Equal(t, 2500, event.calls[1].limit)
	assert.True(t, event.calls[0].scope.Since.IsZero())
	assert.Equal(t, now.Add(-7*24*time.Hour), event.calls[1].scope.Since)
	assert.Len(t, got.Pool.Items(memory.KindEvent), 1)
}

func TestAssemble_BudgetViolationIsFatal(t *testing.T) {
	profile := &fakeSearcher{overflow: true, items: []memory.Item{item(memory.KindProfile, "a", "a", 6000)}}
	a := New(Config{Profile: profile, Policy: budget.DefaultPolicy()})

	_, err := a.Assemble(context.Background(), Request{Categories: []budget.Category{budget.CategoryProfile}, UserID: "u1"})
	require.ErrorIs(t, err, ErrBudgetViolation)
	var bv *BudgetViolationError
	require.ErrorAs(t, err, &bv)
	assert.Equal(t, budget.CategoryProfile, bv.Category)
	assert.Equal(t, 5000, bv.Requested)
	assert.Equal(t, 6000, bv.Returned)
}

func TestAssemble_ExhaustedBudgetIsEmptyNotError(t *testing.T) {
	profile := &fakeSearcher{items: []memory.Item{item(memory.KindProfile, "a", "a", 1)}}
	a := New(Config{Profile: profile, Policy: budget.DefaultPolicy()})

	got, err := a.Assemble(context.Background(), Request{Categories: []budget.Category{budget.CategoryProfile}, UserID: "u1", TotalTokens: 1000})
	require.NoError(t, err)
	assert.Empty(t, profile.calls, "zero budget skips the collaborator")
	assert.Zero(t, got.Pool.Len())
}

func TestAssemble_ValidationNeedsExactlyOneActiveDraft(t *testing.T) {
	artifact := &fakeSearcher{items: []memory.Item{item(memory.KindArtifact, "x", "interview notes", 10)}}
	p1 := item(memory.KindStatic, "p1", "Pain id: p1", 5)
	p2 := item(memory.KindStatic, "p2", "Pain id: p2", 5)
	req := Request{Categories: allCategories, Static: mode.StaticActive, RequiresSubject: true, UserID: "u1", ChatID: "c1"}

	none := New(Config{Facts: fakeFacts{chat: []memory.Item{p1}}, Artifact: artifact, Policy: budget.DefaultPolicy()})
	_, err := none.Assemble(context.Background(), req)
	assert.ErrorIs(t, err, ErrPrecondition)

	two := New(Config{Facts: fakeFacts{active: []memory.Item{p1, p2}}, Artifact: artifact, Policy: budget.DefaultPolicy()})
	_, err = two.Assemble(context.Background(), req)
	assert.ErrorIs(t, err, ErrPrecondition)

	narrowed := req
	narrowed.SubjectIDs = []string{"p2"}
	got, err := two.Assemble(context.Background(), narrowed)
	require.NoError(t, err)
	assert.Equal(t, "p2", got.Subject)
	assert.Equal(t, "p2", artifact.calls[0].scope.PainID)
	assert.Equal(t, 5000, artifact.calls[0].limit)
	assert.Len(t, got.Pool.Items(memory.KindArtifact), 1)
}

func TestAssemble_DocumentModeUsesSubjectOnly(t *testing.T) {
	p1 := item(memory.KindStatic, "p1", "Pain id: p1", 5)
	p2 := item(memory.KindStatic, "p2", "Pain id: p2", 5)
	profile := &fakeSearcher{}
	a := New(Config{Facts: fakeFacts{chat: []memory.Item{p1, p2}}, Profile: profile, Policy: budget.DefaultPolicy()})

	cfg := mode.Config{Mode: mode.PdfGeneration{PainID: "p2"}, Categories: []budget.Category{budget.CategoryHistory}, Static: mode.StaticSubject, RequiresSubject: true}
	got, err := a.Assemble(context.Background(), ForMode(cfg, "u1", "c1", ""))
	require.NoError(t, err)
	static := got.Pool.Items(memory.KindStatic)
	require.Len(t, static, 1)
	assert.Equal(t, "p2", static[0].ID)
	assert.Empty(t, profile.calls)
}

func TestRender(t *testing.T) {
	pool := memory.NewPool(
		item(memory.KindStatic, "p1", "Pain id: p1", 1),
		item(memory.KindProfile, "", "runs a bakery", 1),
		item(memory.KindEvent, "", "picked flour waste", 1),
	)
	out := Render("[KNOWLEDGE]\n{KNOWLEDGE}\n[END]", pool)
	assert.Equal(t, "[KNOWLEDGE]\n- Pain id: p1\n\nUser memories:\n- runs a bakery\n\nChat event memories:\n- picked flour waste\n[END]", out)

	assert.True(t, strings.HasPrefix(Knowledge(memory.Pool{}), "No drafts yet."))
}
