package memory

// Pool is the run-scoped set of memory items grouped by kind. It is a value:
// every method that changes it returns a new Pool and leaves the receiver
// untouched, so a tool callback cannot mutate the pool the loop holds.
type Pool struct {
	groups map[Kind][]Item
}

// NewPool builds a pool from items, dropping duplicates by kind and content.
func NewPool(items ...Item) Pool {
	return Pool{}.With(items...)
}

// With returns a pool with items appended to their kinds. An item whose
// content is already present in its kind is skipped.
func (p Pool) With(items ...Item) Pool {
	out := p.clone()
	for _, it := range items {
		if containsContent(out.groups[it.Kind], it.Content) {
			continue
		}
		out.groups[it.Kind] = append(out.groups[it.Kind], it)
	}
	return out
}

// Upsert returns a pool where the item of the same kind and ID is replaced by
// it, or it is appended when no such item exists.
func (p Pool) Upsert(it Item) Pool {
	out := p.clone()
	group := out.groups[it.Kind]
	for i := range group {
		if group[i].ID != "" && group[i].ID == it.ID {
			group[i] = it
			return out
		}
	}
	out.groups[it.Kind] = append(group, it)
	return out
}

// Items returns a copy of the items of kind k in insertion order.
func (p Pool) Items(k Kind) []Item {
	return append([]Item(nil), p.groups[k]...)
}

// Len returns the number of items across all kinds.
func (p Pool) Len() int {
	n := 0
	for _, g := range p.groups {
		n += len(g)
	}
	return n
}

// Tokens returns the summed cost of the items of kind k.
func (p Pool) Tokens(k Kind) int {
	n := 0
	for _, it := range p.groups[k] {
		n += it.TokenCost
	}
	return n
}

func (p Pool) clone() Pool {
	out := Pool{groups: make(map[Kind][]Item, len(p.groups)+1)}
	for k, g := range p.groups {
		out.groups[k] = append([]Item(nil), g...)
	}
	return out
}

func containsContent(items []Item, content string) bool {
	for _, it := range items {
		if it.Content == content {
			return true
		}
	}
	return false
}

// Dedupe returns items without repeated content, keeping first occurrences.
func Dedupe(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if !containsContent(out, it.Content) {
			out = append(out, it)
		}
	}
	return out
}
