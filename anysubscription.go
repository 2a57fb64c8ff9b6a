package combinex

import "github.com/cx-org/CombineX-sub003/cxdemand"

// SubscriptionFuncs is the set of callbacks for a closure-backed subscription
// created with [NewAnySubscription]. Nil fields are no-ops.
type SubscriptionFuncs struct {
	Request func(cxdemand.Demand)
	Cancel  func()
}

type funcSubscription struct {
	fns SubscriptionFuncs
}

func (s funcSubscription) Request(d cxdemand.Demand) {
	if s.fns.Request != nil {
		s.fns.Request(d)
	}
}

func (s funcSubscription) Cancel() {
	if s.fns.Cancel != nil {
		s.fns.Cancel()
	}
}

// AnySubscription hides the concrete type of a [Subscription].
type AnySubscription struct {
	id  Identifier
	box Subscription
}

// EraseToAnySubscription wraps s in an [AnySubscription].
func EraseToAnySubscription(s Subscription) AnySubscription {
	if as, ok := s.(AnySubscription); ok {
		return as
	}

	id := NewIdentifier()
	if i, ok := s.(Identifiable); ok {
		id = i.ID()
	}
	return AnySubscription{id: id, box: s}
}

// NewAnySubscription returns an [AnySubscription] that invokes fns.
func NewAnySubscription(fns SubscriptionFuncs) AnySubscription {
	return AnySubscription{id: NewIdentifier(), box: funcSubscription{fns: fns}}
}

func (s AnySubscription) ID() Identifier { return s.id }

func (s AnySubscription) Request(d cxdemand.Demand) { s.box.Request(d) }

func (s AnySubscription) Cancel() { s.box.Cancel() }

// EmptySubscription is a subscription that ignores requests and cancellation.
// Publishers hand it out when they complete during Subscribe.
var EmptySubscription Subscription = emptySubscription{}

type emptySubscription struct{}

func (emptySubscription) Request(cxdemand.Demand) {}

func (emptySubscription) Cancel() {}
