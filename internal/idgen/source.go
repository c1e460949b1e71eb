package idgen

import "sync"

// Source issues identifiers for new entities.
// Implemented by Generator (production) and Fixed (tests).
type Source interface {
	Next() int64
}

// Fixed returns predetermined identifiers in order.
//
// Thread-safety: Fixed is safe for concurrent use via internal mutex.
type Fixed struct {
	mu  sync.Mutex
	ids []int64
	idx int
}

// NewFixed creates a source that returns ids in order.
//
// Example:
//
//	src := NewFixed(101, 102)
//	src.Next() // 101
//	src.Next() // 102
//	src.Next() // panic: all ids exhausted
func NewFixed(ids ...int64) *Fixed {
	return &Fixed{ids: ids}
}

// Next returns the next predetermined id.
//
// Panics once all ids are consumed, so a test that creates more entities
// than it planned for fails loudly.
func (f *Fixed) Next() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.idx >= len(f.ids) {
		panic("idgen.Fixed: all ids exhausted")
	}
	id := f.ids[f.idx]
	f.idx++
	return id
}

// Used reports how many ids have been handed out.
func (f *Fixed) Used() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idx
}
