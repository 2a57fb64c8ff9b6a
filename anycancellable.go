package combinex

import (
	"runtime"
	"sync"

	"github.com/cx-org/CombineX-sub003/cxlock"
)

// AnyCancellable wraps a cancel function so that it runs at most once.
//
// If an AnyCancellable becomes unreachable without Cancel having been called,
// the cancel function runs anyway as a cleanup after the value is collected.
// That makes it safe to hold the only reference to a live subscription
// in an AnyCancellable: dropping it tears down the subscription.
// Cleanup timing is up to the garbage collector,
// so code that needs prompt teardown must still call Cancel.
type AnyCancellable struct {
	id Identifier

	// The cleanup must not reference the AnyCancellable itself,
	// so all of the cancellation state lives behind this pointer.
	state *cancelState
}

type cancelState struct {
	once sync.Once
	fn   func()
}

func (s *cancelState) cancel() {
	s.once.Do(func() {
		if s.fn != nil {
			s.fn()
		}
		s.fn = nil
	})
}

// NewAnyCancellable returns an [AnyCancellable] that calls fn on cancellation.
func NewAnyCancellable(fn func()) *AnyCancellable {
	s := &cancelState{fn: fn}
	ac := &AnyCancellable{id: NewIdentifier(), state: s}
	runtime.AddCleanup(ac, (*cancelState).cancel, s)
	return ac
}

// EraseToAnyCancellable wraps c in an [AnyCancellable].
// Wrapping an *AnyCancellable returns it unchanged.
func EraseToAnyCancellable(c Cancellable) *AnyCancellable {
	if ac, ok := c.(*AnyCancellable); ok {
		return ac
	}
	return NewAnyCancellable(c.Cancel)
}

func (c *AnyCancellable) ID() Identifier { return c.id }

// Cancel runs the cancel function if it has not already run.
func (c *AnyCancellable) Cancel() {
	c.state.cancel()
}

// Store adds c to set, so that set.CancelAll cancels it.
func (c *AnyCancellable) Store(set *CancellableSet) {
	set.Add(c)
}

// CancellableSet holds cancellables so that they live as long as the set,
// and can be cancelled together.
// The zero value is ready to use.
type CancellableSet struct {
	mu cxlock.Mutex
	cs []*AnyCancellable
}

// Add adds c to the set.
// Adding to a set after CancelAll is allowed; the set is simply refilled.
func (s *CancellableSet) Add(c *AnyCancellable) {
	cxlock.Do(&s.mu, func() { s.cs = append(s.cs, c) })
}

// Len reports the number of cancellables in the set.
func (s *CancellableSet) Len() int {
	return cxlock.DoValue(&s.mu, func() int { return len(s.cs) })
}

// CancelAll cancels every member of the set and empties it.
func (s *CancellableSet) CancelAll() {
	s.mu.Lock()
	cs := s.cs
	s.cs = nil
	s.mu.Unlock()

	for _, c := range cs {
		c.Cancel()
	}
}
