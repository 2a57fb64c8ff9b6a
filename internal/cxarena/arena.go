// Package cxarena contains a generational arena:
// a slice of slots addressed by [Handle]s that become invalid
// once their slot is removed, even if the slot is later reused.
//
// Subjects keep their per-subscriber records in an Arena
// so that the subscription handed to a subscriber
// is only an index, never an owner of the record.
package cxarena

import "github.com/bits-and-blooms/bitset"

// Handle addresses one slot of an [Arena].
// The zero Handle is never valid.
type Handle struct {
	idx uint
	gen uint32
}

type slot[T any] struct {
	gen uint32
	val *T
}

// Arena stores pointers to T in reusable slots.
// Arena is not safe for concurrent use; callers provide their own locking.
type Arena[T any] struct {
	slots []slot[T]
	live  *bitset.BitSet
	free  []uint
}

// New returns an empty arena.
func New[T any]() *Arena[T] {
	return &Arena[T]{
		live: bitset.New(8),
	}
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v *T) Handle {
	var idx uint
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint(len(a.slots))
		// Generations start at 1 so the zero Handle is never valid.
		a.slots = append(a.slots, slot[T]{gen: 0})
	}

	s := &a.slots[idx]
	s.gen++
	s.val = v
	a.live.Set(idx)

	return Handle{idx: idx, gen: s.gen}
}

// Get returns the value for h, or nil if h is no longer valid.
func (a *Arena[T]) Get(h Handle) *T {
	if !a.valid(h) {
		return nil
	}
	return a.slots[h.idx].val
}

// Remove removes the value for h and returns it,
// or returns nil if h was already invalid.
func (a *Arena[T]) Remove(h Handle) *T {
	if !a.valid(h) {
		return nil
	}

	s := &a.slots[h.idx]
	v := s.val
	s.val = nil
	a.live.Clear(h.idx)
	a.free = append(a.free, h.idx)
	return v
}

func (a *Arena[T]) valid(h Handle) bool {
	return h.gen != 0 &&
		h.idx < uint(len(a.slots)) &&
		a.live.Test(h.idx) &&
		a.slots[h.idx].gen == h.gen
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int {
	return int(a.live.Count())
}

// Values appends every live value to dst, in slot order, and returns dst.
func (a *Arena[T]) Values(dst []*T) []*T {
	for i, ok := a.live.NextSet(0); ok; i, ok = a.live.NextSet(i + 1) {
		dst = append(dst, a.slots[i].val)
	}
	return dst
}

// Clear removes every value, invalidating all outstanding handles.
func (a *Arena[T]) Clear() {
	for i, ok := a.live.NextSet(0); ok; i, ok = a.live.NextSet(i + 1) {
		a.slots[i].val = nil
		a.free = append(a.free, i)
	}
	a.live.ClearAll()
}
