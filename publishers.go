package combinex

import (
	"github.com/cx-org/CombineX-sub003/cxdemand"
	"github.com/cx-org/CombineX-sub003/cxlock"
)

// Just returns a publisher that emits v once to each subscriber and then finishes.
func Just[T any](v T) Publisher[T] {
	return Sequence(v)
}

// Empty returns a publisher that finishes immediately without emitting.
func Empty[T any]() Publisher[T] {
	return PublisherFunc[T](func(s Subscriber[T]) {
		s.OnSubscribe(EmptySubscription)
		s.OnCompletion(Finished)
	})
}

// Fail returns a publisher that fails immediately with err.
func Fail[T any](err error) Publisher[T] {
	c := Failed(err)
	return PublisherFunc[T](func(s Subscriber[T]) {
		s.OnSubscribe(EmptySubscription)
		s.OnCompletion(c)
	})
}

// Deferred returns a publisher that calls create
// on every Subscribe and subscribes to the result.
func Deferred[T any](create func() Publisher[T]) Publisher[T] {
	return PublisherFunc[T](func(s Subscriber[T]) {
		create().Subscribe(s)
	})
}

// Sequence returns a publisher that emits values in order,
// honoring each subscriber's demand, and then finishes.
//
// The values slice is not copied; callers must not modify it
// while subscriptions are live.
func Sequence[T any](values ...T) Publisher[T] {
	return PublisherFunc[T](func(s Subscriber[T]) {
		if len(values) == 0 {
			s.OnSubscribe(EmptySubscription)
			s.OnCompletion(Finished)
			return
		}

		s.OnSubscribe(&sequenceSubscription[T]{
			id:     NewIdentifier(),
			values: values,
			sub:    s,
		})
	})
}

type sequenceSubscription[T any] struct {
	id Identifier

	mu       cxlock.Mutex
	values   []T
	demand   cxdemand.Demand
	emitting bool

	// Nil once cancelled or finished.
	sub Subscriber[T]
}

func (s *sequenceSubscription[T]) ID() Identifier { return s.id }

func (s *sequenceSubscription[T]) Request(d cxdemand.Demand) {
	s.mu.Lock()
	if s.sub == nil {
		s.mu.Unlock()
		return
	}

	s.demand = s.demand.Add(d)
	if s.emitting {
		// A Request from inside OnValue;
		// the loop below on the outer call picks up the new demand.
		s.mu.Unlock()
		return
	}
	s.emitting = true

	for {
		sub := s.sub
		if sub == nil {
			s.emitting = false
			s.mu.Unlock()
			return
		}

		if len(s.values) == 0 {
			s.sub = nil
			s.emitting = false
			s.mu.Unlock()
			sub.OnCompletion(Finished)
			return
		}

		if !s.demand.Positive() {
			s.emitting = false
			s.mu.Unlock()
			return
		}

		v := s.values[0]
		s.values = s.values[1:]
		s.demand = s.demand.SubInt(1)
		s.mu.Unlock()

		more := sub.OnValue(v)

		s.mu.Lock()
		s.demand = s.demand.Add(more)
	}
}

func (s *sequenceSubscription[T]) Cancel() {
	cxlock.Do(&s.mu, func() {
		s.sub = nil
		s.values = nil
	})
}
