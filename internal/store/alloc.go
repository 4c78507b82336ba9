package store

import "sync/atomic"

// Allocator issues identifiers for directories and notes from one shared,
// strictly increasing sequence. Issued values are never reused within a
// store instance; deleted identifiers leave permanent gaps.
type Allocator struct {
	last atomic.Int64
}

// NewAllocator returns an allocator that continues after last.
func NewAllocator(last int64) *Allocator {
	a := &Allocator{}
	a.last.Store(last)
	return a
}

// Allocate returns the next identifier. Safe for concurrent use: callers
// racing on Allocate each receive a distinct value.
func (a *Allocator) Allocate() int64 {
	return a.last.Add(1)
}

// Last returns the most recently issued identifier.
func (a *Allocator) Last() int64 {
	return a.last.Load()
}
