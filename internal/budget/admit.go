package budget

// Admit returns the longest prefix of items, in priority order, whose total
// cost stays within limit. It stops at the first item that does not fit.
func Admit[T any](items []T, limit int, cost func(T) int) []T {
	used := 0
	for i, it := range items {
		c := cost(it)
		if used+c > limit {
			return items[:i:i]
		}
		used += c
	}
	return items
}

// TrimRecent keeps the newest items whose total cost stays within limit.
// items are chronological (oldest first); the walk goes newest to oldest and
// stops at the first item that does not fit, so an old item is always dropped
// before a newer one. The result is chronological.
func TrimRecent[T any](items []T, limit int, cost func(T) int) []T {
	used := 0
	start := len(items)
	for i := len(items) - 1; i >= 0; i-- {
		c := cost(items[i])
		if used+c > limit {
			break
		}
		used += c
		start = i
	}
	out := make([]T, len(items)-start)
	copy(out, items[start:])
	return out
}

// Total sums the cost of items.
func Total[T any](items []T, cost func(T) int) int {
	n := 0
	for _, it := range items {
		n += cost(it)
	}
	return n
}

// EstimateTokens approximates the token count of s at four bytes per token.
// Non-empty text costs at least one token.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return max(len(s)/4, 1)
}
