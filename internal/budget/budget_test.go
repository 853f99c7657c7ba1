package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allCategories = []Category{
	CategoryHistory, CategoryProfile, CategoryEventAllTime, CategoryEventRecent, CategoryArtifact,
}

func TestAllocate_DefaultPolicy(t *testing.T) {
	a := DefaultPolicy().Allocate(DefaultTotalTokens, allCategories)

	assert.Equal(t, 2000, a.Get(CategoryHistory))
	assert.Equal(t, 5000, a.Get(CategoryProfile))
	assert.Equal(t, 2500, a.Get(CategoryEventAllTime))
	assert.Equal(t, 2500, a.Get(CategoryEventRecent))
	assert.Equal(t, 5000, a.Event())
	assert.Equal(t, 5000, a.Get(CategoryArtifact), "artifact budget is outside the pool")
}

func TestAllocate_OddRemainderGoesToEvents(t *testing.T) {
	p := Policy{HistoryTokens: 10, ArtifactTokens: 0}
	a := p.Allocate(21, allCategories)

	assert.Equal(t, 10, a.Get(CategoryHistory))
	assert.Equal(t, 5, a.Get(CategoryProfile))
	assert.Equal(t, 3, a.Get(CategoryEventAllTime))
	assert.Equal(t, 3, a.Get(CategoryEventRecent))
	assert.Equal(t, 21, a.Get(CategoryHistory)+a.Get(CategoryProfile)+a.Event())
}

func TestAllocate_ExhaustedPoolIsEmptyNotError(t *testing.T) {
	tests := []struct {
		name  string
		total int
	}{
		{"exactly history", 2000},
		{"below history", 500},
		{"zero", 0},
		{"negative", -100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := DefaultPolicy().Allocate(tt.total, allCategories)
			assert.Equal(t, 0, a.Get(CategoryProfile))
			assert.Equal(t, 0, a.Event())
			assert.GreaterOrEqual(t, a.Get(CategoryHistory), 0)
			assert.LessOrEqual(t, a.Get(CategoryHistory), max(tt.total, 0))
			assert.Equal(t, 5000, a.Get(CategoryArtifact))
		})
	}
}

func TestAllocate_OnlyRequestedCategories(t *testing.T) {
	a := DefaultPolicy().Allocate(DefaultTotalTokens, []Category{CategoryHistory, CategoryProfile})
	require.Len(t, a, 2)
	_, ok := a[CategoryArtifact]
	assert.False(t, ok)
	assert.Equal(t, 5000, a.Get(CategoryProfile), "split does not depend on the requested set")
}

func TestSplitMemory_ToolBudget(t *testing.T) {
	a := DefaultPolicy().SplitMemory(DefaultToolMemoryTokens)
	assert.Equal(t, 500, a.Get(CategoryProfile))
	assert.Equal(t, 250, a.Get(CategoryEventAllTime))
	assert.Equal(t, 250, a.Get(CategoryEventRecent))
}

func identity(n int) int { return n }

func TestAdmit_GreedyPrefix(t *testing.T) {
	got := Admit([]int{4, 4, 4}, 10, identity)
	assert.Equal(t, []int{4, 4}, got)
	assert.LessOrEqual(t, Total(got, identity), 10)
}

func TestAdmit_StopsAtFirstMisfit(t *testing.T) {
	got := Admit([]int{3, 8, 1}, 5, identity)
	assert.Equal(t, []int{3}, got)
}

func TestAdmit_ZeroBudget(t *testing.T) {
	assert.Empty(t, Admit([]int{1, 2}, 0, identity))
	assert.Equal(t, []int{0, 0}, Admit([]int{0, 0}, 0, identity), "free items always fit")
}

func TestAdmit_AppendDoesNotClobberInput(t *testing.T) {
	in := []int{4, 4, 4}
	got := Admit(in, 8, identity)
	got = append(got, 99)
	assert.Equal(t, []int{4, 4, 4}, in)
	assert.Equal(t, []int{4, 4, 99}, got)
}

func TestTrimRecent_PrefersNewest(t *testing.T) {
	type turn struct {
		id   string
		cost int
	}
	turns := []turn{{"t1", 3}, {"t2", 3}, {"t3", 3}, {"t4", 3}}
	got := TrimRecent(turns, 7, func(t turn) int { return t.cost })

	require.Len(t, got, 2)
	assert.Equal(t, "t3", got[0].id)
	assert.Equal(t, "t4", got[1].id)
}

func TestTrimRecent_StopsAtFirstMisfit(t *testing.T) {
	got := TrimRecent([]int{1, 50, 2, 2}, 10, identity)
	assert.Equal(t, []int{2, 2}, got, "an older small item behind a large one is not reached")
}

func TestTrimRecent_Empty(t *testing.T) {
	assert.Empty(t, TrimRecent([]int{}, 10, identity))
	assert.Empty(t, TrimRecent([]int{5}, 0, identity))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("hi"))
	assert.Equal(t, 3, EstimateTokens("twelve chars"))
}
