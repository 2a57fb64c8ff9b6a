// Package cxlock contains the mutual-exclusion primitives
// used throughout the module.
//
// [Mutex] is a plain lock with a try variant.
// [RecursiveMutex] may be re-acquired by the goroutine that already holds it;
// it exists for the few places where a callback can re-enter
// a component that is still inside its locked section,
// such as an action run by the virtual-time scheduler
// scheduling another action.
// Prefer releasing a Mutex before invoking external code
// over reaching for the recursive variant.
//
// [Do], [DoErr], and [DoValue] acquire a lock for the duration of a function
// and release it on every exit path, including panics.
package cxlock

import "sync"

// Locker is the method set shared by [*Mutex] and [*RecursiveMutex].
type Locker interface {
	sync.Locker
	TryLock() bool
}

// Mutex is a non-reentrant mutual-exclusion lock.
// The zero value is an unlocked mutex.
//
// Locking a Mutex that the calling goroutine already holds deadlocks.
type Mutex struct {
	mu sync.Mutex
}

func (m *Mutex) Lock() { m.mu.Lock() }

func (m *Mutex) Unlock() { m.mu.Unlock() }

// TryLock acquires the lock if it is free,
// reporting whether it did so.
func (m *Mutex) TryLock() bool { return m.mu.TryLock() }

// Do calls fn while holding l.
func Do(l sync.Locker, fn func()) {
	l.Lock()
	defer l.Unlock()
	fn()
}

// DoErr calls fn while holding l and returns fn's error.
func DoErr(l sync.Locker, fn func() error) error {
	l.Lock()
	defer l.Unlock()
	return fn()
}

// DoValue calls fn while holding l and returns its result.
func DoValue[T any](l sync.Locker, fn func() T) T {
	l.Lock()
	defer l.Unlock()
	return fn()
}
