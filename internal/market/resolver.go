package market

import (
	"sync"

	"polymind/internal/model"
)

// Resolver is an in-memory index from outcome token id to market reference.
// It is rebuilt wholesale after each metadata sync; reads see either the old
// snapshot or the new one, never a partial rebuild.
type Resolver struct {
	mu   sync.RWMutex
	refs map[string]model.TokenRef
}

func NewResolver() *Resolver {
	return &Resolver{refs: make(map[string]model.TokenRef)}
}

// Rebuild replaces the index from the given market rows. A token id owned by
// two markets keeps the first owner; at most one market may own a token.
func (r *Resolver) Rebuild(markets []model.Market) {
	refs := make(map[string]model.TokenRef, len(markets)*2)
	for _, m := range markets {
		if m.YesTokenID != "" {
			if _, taken := refs[m.YesTokenID]; !taken {
				refs[m.YesTokenID] = model.TokenRef{MarketSlug: m.Slug, Outcome: model.OutcomeYes}
			}
		}
		if m.NoTokenID != "" {
			if _, taken := refs[m.NoTokenID]; !taken {
				refs[m.NoTokenID] = model.TokenRef{MarketSlug: m.Slug, Outcome: model.OutcomeNo}
			}
		}
	}

	r.mu.Lock()
	r.refs = refs
	r.mu.Unlock()
}

// Resolve looks up the market reference for a token id.
func (r *Resolver) Resolve(tokenID string) (model.TokenRef, bool) {
	r.mu.RLock()
	ref, ok := r.refs[tokenID]
	r.mu.RUnlock()
	return ref, ok
}

// Len returns the number of indexed token ids.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.refs)
}
