package combinex

import "github.com/cx-org/CombineX-sub003/cxdemand"

// SubscriberFuncs is the set of callbacks for a closure-backed subscriber
// created with [NewAnySubscriber].
// Any nil field is treated as a no-op;
// a nil OnValue grants no additional demand.
type SubscriberFuncs[T any] struct {
	OnSubscribe  func(Subscription)
	OnValue      func(T) cxdemand.Demand
	OnCompletion func(Completion)
}

type funcSubscriber[T any] struct {
	fns SubscriberFuncs[T]
}

func (s funcSubscriber[T]) OnSubscribe(sub Subscription) {
	if s.fns.OnSubscribe != nil {
		s.fns.OnSubscribe(sub)
	}
}

func (s funcSubscriber[T]) OnValue(v T) cxdemand.Demand {
	if s.fns.OnValue != nil {
		return s.fns.OnValue(v)
	}
	return cxdemand.None
}

func (s funcSubscriber[T]) OnCompletion(c Completion) {
	if s.fns.OnCompletion != nil {
		s.fns.OnCompletion(c)
	}
}

// AnySubscriber hides the concrete type of a [Subscriber].
type AnySubscriber[T any] struct {
	id  Identifier
	box Subscriber[T]
}

// EraseToAnySubscriber wraps s in an [AnySubscriber].
// Wrapping an AnySubscriber returns it unchanged.
func EraseToAnySubscriber[T any](s Subscriber[T]) AnySubscriber[T] {
	if as, ok := s.(AnySubscriber[T]); ok {
		return as
	}

	id := NewIdentifier()
	if i, ok := s.(Identifiable); ok {
		id = i.ID()
	}
	return AnySubscriber[T]{id: id, box: s}
}

// NewAnySubscriber returns an [AnySubscriber] that invokes fns.
func NewAnySubscriber[T any](fns SubscriberFuncs[T]) AnySubscriber[T] {
	return AnySubscriber[T]{id: NewIdentifier(), box: funcSubscriber[T]{fns: fns}}
}

func (s AnySubscriber[T]) ID() Identifier { return s.id }

func (s AnySubscriber[T]) OnSubscribe(sub Subscription) { s.box.OnSubscribe(sub) }

func (s AnySubscriber[T]) OnValue(v T) cxdemand.Demand { return s.box.OnValue(v) }

func (s AnySubscriber[T]) OnCompletion(c Completion) { s.box.OnCompletion(c) }
