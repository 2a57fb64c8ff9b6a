// Package combinextest contains fixtures for testing publishers and subscribers.
package combinextest

import (
	"sync/atomic"

	combinex "github.com/cx-org/CombineX-sub003"
	"github.com/cx-org/CombineX-sub003/cxdemand"
	"github.com/cx-org/CombineX-sub003/cxlock"
)

// EventKind distinguishes the entries in a [Recorder]'s event log.
type EventKind uint8

const (
	SubscriptionEvent EventKind = iota + 1
	ValueEvent
	CompletionEvent
)

// Event is a single callback observed by a [Recorder].
type Event[T any] struct {
	Kind       EventKind
	Value      T
	Completion combinex.Completion
}

// RecorderConfig is the configuration for [NewRecorder].
type RecorderConfig[T any] struct {
	// Demand requested from inside OnSubscribe.
	// Nothing is requested when this is None.
	InitialDemand cxdemand.Demand

	// Called from OnValue, after the value is recorded,
	// to determine the additional demand to return.
	// When nil, OnValue returns None.
	OnValue func(r *Recorder[T], v T) cxdemand.Demand
}

// Recorder is a subscriber that records every callback it receives.
//
// Recorder panics with [combinex.ContractViolationError]
// when the protocol ordering is broken:
// a value or completion before the subscription,
// a second subscription, or anything after the completion.
type Recorder[T any] struct {
	id  combinex.Identifier
	cfg RecorderConfig[T]

	mu     cxlock.Mutex
	sub    combinex.Subscription
	events []Event[T]
	values []T
	comp   *combinex.Completion

	done chan struct{}

	inCallback atomic.Int32
	overlapped atomic.Bool
}

// NewRecorder returns a new Recorder.
func NewRecorder[T any](cfg RecorderConfig[T]) *Recorder[T] {
	return &Recorder[T]{
		id:   combinex.NewIdentifier(),
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

func (r *Recorder[T]) ID() combinex.Identifier { return r.id }

func (r *Recorder[T]) enter() {
	if r.inCallback.Add(1) > 1 {
		r.overlapped.Store(true)
	}
}

func (r *Recorder[T]) leave() {
	r.inCallback.Add(-1)
}

func (r *Recorder[T]) OnSubscribe(s combinex.Subscription) {
	r.enter()

	r.mu.Lock()
	if r.sub != nil {
		r.mu.Unlock()
		r.leave()
		panic(combinex.ContractViolationError{Op: "OnSubscribe", Reason: "subscription received twice"})
	}
	r.sub = s
	r.events = append(r.events, Event[T]{Kind: SubscriptionEvent})
	r.mu.Unlock()

	// Publishers may deliver synchronously from inside Request,
	// which is not an overlapping callback.
	r.leave()

	if r.cfg.InitialDemand.Positive() {
		s.Request(r.cfg.InitialDemand)
	}
}

func (r *Recorder[T]) OnValue(v T) cxdemand.Demand {
	r.enter()
	defer r.leave()

	r.mu.Lock()
	if r.sub == nil {
		r.mu.Unlock()
		panic(combinex.ContractViolationError{Op: "OnValue", Reason: "value before subscription"})
	}
	if r.comp != nil {
		r.mu.Unlock()
		panic(combinex.ContractViolationError{Op: "OnValue", Reason: "value after completion"})
	}
	r.values = append(r.values, v)
	r.events = append(r.events, Event[T]{Kind: ValueEvent, Value: v})
	r.mu.Unlock()

	if r.cfg.OnValue != nil {
		return r.cfg.OnValue(r, v)
	}
	return cxdemand.None
}

func (r *Recorder[T]) OnCompletion(c combinex.Completion) {
	r.enter()
	defer r.leave()

	r.mu.Lock()
	if r.sub == nil {
		r.mu.Unlock()
		panic(combinex.ContractViolationError{Op: "OnCompletion", Reason: "completion before subscription"})
	}
	if r.comp != nil {
		r.mu.Unlock()
		panic(combinex.ContractViolationError{Op: "OnCompletion", Reason: "second completion"})
	}
	r.comp = &c
	r.events = append(r.events, Event[T]{Kind: CompletionEvent, Completion: c})
	r.mu.Unlock()

	close(r.done)
}

// Request requests d through the received subscription.
// It panics if no subscription has been received.
func (r *Recorder[T]) Request(d cxdemand.Demand) {
	r.subscription("Request").Request(d)
}

// Cancel cancels the received subscription.
// It panics if no subscription has been received.
func (r *Recorder[T]) Cancel() {
	r.subscription("Cancel").Cancel()
}

func (r *Recorder[T]) subscription(op string) combinex.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub == nil {
		panic(combinex.ContractViolationError{Op: op, Reason: "no subscription received"})
	}
	return r.sub
}

// Subscribed reports whether OnSubscribe has been called.
func (r *Recorder[T]) Subscribed() bool {
	return cxlock.DoValue(&r.mu, func() bool { return r.sub != nil })
}

// Values returns a copy of the values received so far.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.values))
	copy(out, r.values)
	return out
}

// Events returns a copy of the events received so far.
func (r *Recorder[T]) Events() []Event[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event[T], len(r.events))
	copy(out, r.events)
	return out
}

// Completion returns the received completion,
// and whether one has been received.
func (r *Recorder[T]) Completion() (combinex.Completion, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.comp == nil {
		return combinex.Completion{}, false
	}
	return *r.comp, true
}

// Done returns a channel that is closed when the completion is received.
func (r *Recorder[T]) Done() <-chan struct{} {
	return r.done
}

// Overlapped reports whether any two callbacks were ever in progress at once.
// Nested callbacks on the same goroutine also count.
func (r *Recorder[T]) Overlapped() bool {
	return r.overlapped.Load()
}
