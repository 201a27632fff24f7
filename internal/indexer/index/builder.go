package index

import "sync"

// Builder accumulates postings into an Inverted index. Repeated postings for
// the same (term, doc) pair add up. Safe for concurrent use.
type Builder struct {
	mu       sync.Mutex
	index    Inverted
	postings int
}

func NewBuilder() *Builder {
	return &Builder{index: make(Inverted)}
}

func (b *Builder) Add(p Posting) {
	b.mu.Lock()
	defer b.mu.Unlock()
	docs, exists := b.index[p.Term]
	if !exists {
		docs = make(map[int]int)
		b.index[p.Term] = docs
	}
	if _, seen := docs[p.DocID]; !seen {
		b.postings++
	}
	docs[p.DocID] += p.Frequency
}

func (b *Builder) Postings() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.postings
}

// Build hands over the accumulated index and resets the builder.
func (b *Builder) Build() Inverted {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.index
	b.index = make(Inverted)
	b.postings = 0
	return out
}
