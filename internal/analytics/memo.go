package analytics

import (
	"context"
	"sync"

	"github.com/heffrey78/claude-tools/internal/corpus"
)

// Memo caches the single most recent Bundles by corpus hash, per spec.md
// §4.J's "keyed on corpus hash and memoised" requirement. Analytics has no
// sub-period variants like the timeline does, so one slot is enough.
type Memo struct {
	mu      sync.Mutex
	cached  *Bundles
}

// Get returns the memoised Bundles for c if its hash still matches,
// recomputing and caching otherwise.
func (m *Memo) Get(ctx context.Context, c *corpus.Corpus) (*Bundles, error) {
	m.mu.Lock()
	if m.cached != nil && m.cached.CorpusHash == c.Hash {
		cached := m.cached
		m.mu.Unlock()
		return cached, nil
	}
	m.mu.Unlock()

	fresh, err := Compute(ctx, c)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cached = fresh
	m.mu.Unlock()
	return fresh, nil
}
