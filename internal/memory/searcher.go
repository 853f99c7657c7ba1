package memory

import "context"

// KindSearcher binds a store to one kind so it satisfies the per-category
// search collaborator contract.
type KindSearcher struct {
	store *Store
	kind  Kind
}

// Searcher returns the collaborator for kind k.
func (s *Store) Searcher(k Kind) KindSearcher {
	return KindSearcher{store: s, kind: k}
}

// Search returns items of the bound kind within limit tokens.
func (ks KindSearcher) Search(ctx context.Context, query string, limit int, scope Scope) ([]Item, error) {
	return ks.store.Search(ctx, ks.kind, query, limit, scope)
}
