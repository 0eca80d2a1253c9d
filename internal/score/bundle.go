package score

import (
	"sync"

	"github.com/ppiankov/verdict/internal/model"
)

// Bundle is an ordered evidence collection whose score is recomputed over the
// full item set whenever items are added
type Bundle struct {
	mu     sync.RWMutex
	scorer *Scorer
	items  []model.EvidenceItem
	result model.EvidenceScore
}

// NewBundle creates a bundle scored by s
func (s *Scorer) NewBundle(items ...model.EvidenceItem) *Bundle {
	b := &Bundle{scorer: s}
	b.Add(items...)
	return b
}

// Add appends items and rescores the bundle. An item keeps its index when it
// sorts after the last one in the bundle; otherwise it takes the next free index.
func (b *Bundle) Add(items ...model.EvidenceItem) model.EvidenceScore {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, item := range items {
		if n := len(b.items); n > 0 && item.Index <= b.items[n-1].Index {
			item.Index = b.items[n-1].Index + 1
		}
		b.items = append(b.items, item)
	}
	b.result = b.scorer.Score(b.items)
	return b.result
}

// Items returns a copy of the bundle's items in order
func (b *Bundle) Items() []model.EvidenceItem {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.EvidenceItem, len(b.items))
	copy(out, b.items)
	return out
}

// Score returns the current score of the bundle
func (b *Bundle) Score() model.EvidenceScore {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.result
}

// Len returns the number of items
func (b *Bundle) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}
