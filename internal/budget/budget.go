// Package budget splits a context token budget across memory categories and
// admits ranked candidates under a ceiling.
//
// Policy: conversation history has a fixed budget taken off the top. Of what
// remains, profile memory gets half and event memory the rest, which is split
// again between an all-time search and a recent-window search. Artifact memory
// has its own fixed budget outside that pool.
package budget

// Category names one independently budgeted slice of the context.
type Category string

// Budgeted categories.
const (
	CategoryHistory      Category = "history"
	CategoryProfile      Category = "profile"
	CategoryEventAllTime Category = "event_all_time"
	CategoryEventRecent  Category = "event_recent"
	CategoryArtifact     Category = "artifact"
)

// Defaults observed in production.
const (
	DefaultHistoryTokens    = 2000
	DefaultArtifactTokens   = 5000
	DefaultTotalTokens      = 12000
	DefaultToolMemoryTokens = 1000
)

// Policy holds the fixed budgets. The pool ratios are not configurable.
type Policy struct {
	HistoryTokens  int
	ArtifactTokens int
}

// DefaultPolicy returns the production budgets.
func DefaultPolicy() Policy {
	return Policy{HistoryTokens: DefaultHistoryTokens, ArtifactTokens: DefaultArtifactTokens}
}

// Allocation maps each requested category to its token ceiling. A category
// that was requested but has nothing left maps to 0.
type Allocation map[Category]int

// Get returns the ceiling for c, 0 when absent.
func (a Allocation) Get(c Category) int {
	return a[c]
}

// Event returns the combined event ceiling (all-time plus recent).
func (a Allocation) Event() int {
	return a[CategoryEventAllTime] + a[CategoryEventRecent]
}

// Allocate splits total across the requested categories. Categories not in
// the list are left out of the result; the split itself does not depend on
// which categories were asked for. Exhaustion is not an error: the affected
// categories get 0.
func (p Policy) Allocate(total int, categories []Category) Allocation {
	history := clamp(min(p.HistoryTokens, total))
	pool := p.SplitMemory(total - history)
	pool[CategoryHistory] = history
	pool[CategoryArtifact] = clamp(p.ArtifactTokens)

	out := make(Allocation, len(categories))
	for _, c := range categories {
		out[c] = pool[c]
	}
	return out
}

// SplitMemory applies the profile/event ratios to tokens with no history
// deduction. Tool-triggered memory searches use it directly.
func (p Policy) SplitMemory(tokens int) Allocation {
	tokens = clamp(tokens)
	profile := tokens / 2
	event := tokens - profile
	allTime := event / 2
	return Allocation{
		CategoryProfile:      profile,
		CategoryEventAllTime: allTime,
		CategoryEventRecent:  event - allTime,
	}
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
