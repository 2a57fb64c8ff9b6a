package combinex

import (
	"github.com/cx-org/CombineX-sub003/cxdemand"
	"github.com/cx-org/CombineX-sub003/cxlock"
)

// Sink subscribes to pub with unlimited demand,
// calling onValue for every value and onCompletion for the terminal signal.
// Either callback may be nil.
//
// The returned [AnyCancellable] cancels the subscription.
// Dropping it without cancelling also cancels, eventually; see AnyCancellable.
func Sink[T any](
	pub Publisher[T],
	onValue func(T),
	onCompletion func(Completion),
) *AnyCancellable {
	s := &sink[T]{
		id:           NewIdentifier(),
		onValue:      onValue,
		onCompletion: onCompletion,
	}
	pub.Subscribe(s)
	return NewAnyCancellable(s.Cancel)
}

type sink[T any] struct {
	id Identifier

	onValue      func(T)
	onCompletion func(Completion)

	mu   cxlock.Mutex
	sub  Subscription
	done bool
}

func (s *sink[T]) ID() Identifier { return s.id }

func (s *sink[T]) OnSubscribe(sub Subscription) {
	s.mu.Lock()
	if s.sub != nil || s.done {
		s.mu.Unlock()
		sub.Cancel()
		return
	}
	s.sub = sub
	s.mu.Unlock()

	sub.Request(cxdemand.Unlimited)
}

func (s *sink[T]) OnValue(v T) cxdemand.Demand {
	if s.onValue != nil {
		s.onValue(v)
	}
	return cxdemand.None
}

func (s *sink[T]) OnCompletion(c Completion) {
	cxlock.Do(&s.mu, func() {
		s.done = true
		s.sub = nil
	})

	if s.onCompletion != nil {
		s.onCompletion(c)
	}
}

func (s *sink[T]) Cancel() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.done = true
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}
