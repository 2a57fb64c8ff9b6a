package cxlock

import (
	"fmt"
	"sync"

	"github.com/petermattis/goid"
)

// RecursiveMutex is a mutual-exclusion lock that the owning goroutine
// may acquire multiple times.
// Each Lock must be balanced by an Unlock from the same goroutine;
// the lock is released to other goroutines when the count returns to zero.
//
// The zero value is an unlocked mutex.
type RecursiveMutex struct {
	state sync.Mutex
	cond  sync.Cond

	owner int64
	depth int
}

func (m *RecursiveMutex) Lock() {
	id := goid.Get()

	m.state.Lock()
	defer m.state.Unlock()

	if m.cond.L == nil {
		m.cond.L = &m.state
	}

	for m.depth > 0 && m.owner != id {
		m.cond.Wait()
	}

	m.owner = id
	m.depth++
}

// TryLock acquires the lock if it is free or already held by the caller,
// reporting whether it did so.
func (m *RecursiveMutex) TryLock() bool {
	id := goid.Get()

	m.state.Lock()
	defer m.state.Unlock()

	if m.depth > 0 && m.owner != id {
		return false
	}

	m.owner = id
	m.depth++
	return true
}

// Unlock releases one level of ownership.
//
// Unlock panics if the calling goroutine does not hold the lock.
func (m *RecursiveMutex) Unlock() {
	id := goid.Get()

	m.state.Lock()
	defer m.state.Unlock()

	if m.depth == 0 || m.owner != id {
		panic(fmt.Errorf(
			"cxlock: unlock of RecursiveMutex by goroutine %d not holding it (owner=%d depth=%d)",
			id, m.owner, m.depth,
		))
	}

	m.depth--
	if m.depth == 0 {
		m.owner = 0
		if m.cond.L != nil {
			m.cond.Signal()
		}
	}
}

// HeldByCaller reports whether the calling goroutine currently holds m.
func (m *RecursiveMutex) HeldByCaller() bool {
	id := goid.Get()

	m.state.Lock()
	defer m.state.Unlock()

	return m.depth > 0 && m.owner == id
}
