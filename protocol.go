package combinex

import "github.com/cx-org/CombineX-sub003/cxdemand"

// Publisher produces a sequence of values for any number of subscribers.
//
// Subscribe must call s.OnSubscribe synchronously,
// before delivering any value or completion to s.
// Every call to Subscribe starts an independent subscription.
type Publisher[T any] interface {
	Subscribe(s Subscriber[T])
}

// Subscriber consumes values from a [Publisher].
//
// Calls to a single Subscriber are serialized by its publisher:
// OnSubscribe happens first, then zero or more OnValue calls,
// then at most one OnCompletion.
type Subscriber[T any] interface {
	// OnSubscribe hands the subscriber its subscription.
	// It is called exactly once per subscription.
	OnSubscribe(s Subscription)

	// OnValue delivers one value.
	// The returned demand is added to the subscriber's outstanding demand;
	// it does not replace it.
	OnValue(v T) cxdemand.Demand

	// OnCompletion delivers the terminal signal.
	OnCompletion(c Completion)
}

// Subscription is the link between one publisher and one subscriber.
type Subscription interface {
	Cancellable

	// Request adds d to the outstanding demand.
	// Requests after cancellation or completion are ignored.
	Request(d cxdemand.Demand)
}

// Cancellable is anything that can be cancelled.
// Cancel must be idempotent.
type Cancellable interface {
	Cancel()
}

// Completion is the terminal signal of a subscription.
// A nil Err means the publisher finished normally.
type Completion struct {
	Err error
}

// Finished is the Completion for a publisher that finished normally.
var Finished = Completion{}

// Failed returns a Completion carrying err.
// Failed panics if err is nil, since that would read as Finished.
func Failed(err error) Completion {
	if err == nil {
		panic(ContractViolationError{Op: "Failed", Reason: "nil error"})
	}
	return Completion{Err: err}
}

// IsFinished reports whether c is a normal completion.
func (c Completion) IsFinished() bool {
	return c.Err == nil
}

func (c Completion) String() string {
	if c.Err == nil {
		return "finished"
	}
	return "failed(" + c.Err.Error() + ")"
}
