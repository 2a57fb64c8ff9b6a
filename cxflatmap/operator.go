package cxflatmap

import (
	"log/slog"
	"slices"

	combinex "github.com/cx-org/CombineX-sub003"
	"github.com/cx-org/CombineX-sub003/cxdemand"
	"github.com/cx-org/CombineX-sub003/cxlock"
	"github.com/cx-org/CombineX-sub003/internal/cxtrace"
)

type upstreamState uint8

const (
	upstreamWaiting upstreamState = iota
	upstreamRelaying
	upstreamCompleted
)

type downstreamState uint8

const (
	downstreamWaiting downstreamState = iota
	downstreamDemanding
	downstreamCompleted
)

// operator is one flat-map subscription.
// It subscribes to the upstream, acts as the downstream's subscription,
// and owns every child subscriber.
//
// Every downstream callback happens inside drainLocked,
// and only one goroutine at a time runs the drain loop,
// so downstream callbacks are serialized
// without mu being held while they run.
type operator[In, Out any] struct {
	id   combinex.Identifier
	log  *slog.Logger
	span cxtrace.Span // Ended when the operation terminates.

	max       cxdemand.Demand
	transform func(In) combinex.Publisher[Out]

	downstream combinex.Subscriber[Out]

	mu cxlock.Mutex

	upState  upstreamState
	upstream combinex.Subscription // Set only while relaying.

	downState downstreamState
	demand    cxdemand.Demand

	// Whether downstream.OnSubscribe has returned.
	// Nothing is delivered downstream before then.
	ready bool

	// Whether a goroutine is running the drain loop.
	emitting bool

	// First failure, upstream or child.
	failure error

	// Active children, in drain order.
	// A child whose publisher finished stays here
	// until its buffered value is delivered.
	children []*child[In, Out]
}

func (o *operator[In, Out]) ID() combinex.Identifier { return o.id }

// OnSubscribe is called by the upstream publisher.
func (o *operator[In, Out]) OnSubscribe(s combinex.Subscription) {
	o.mu.Lock()
	if o.upState != upstreamWaiting {
		o.mu.Unlock()
		s.Cancel()
		return
	}
	o.upState = upstreamRelaying
	o.upstream = s
	o.mu.Unlock()

	o.downstream.OnSubscribe(o)

	o.mu.Lock()
	o.ready = true
	relaying := o.upState == upstreamRelaying
	o.drainLocked(nil)

	// Requesting exactly the concurrency bound is what keeps
	// the number of children within it.
	if relaying {
		s.Request(o.max)
	}
}

// OnValue is called by the upstream publisher
// and starts a new child for v.
func (o *operator[In, Out]) OnValue(v In) cxdemand.Demand {
	o.mu.Lock()
	switch o.upState {
	case upstreamWaiting:
		o.mu.Unlock()
		o.upstreamBeforeSubscribe("OnValue")
	case upstreamCompleted:
		// Cancelled or failed; a late value is ignored.
		o.mu.Unlock()
		return cxdemand.None
	}

	if o.max.CmpInt(len(o.children)) <= 0 {
		n := len(o.children)
		o.mu.Unlock()

		o.log.Error(
			"Upstream delivered a value beyond requested demand",
			"max_concurrent", o.max,
			"children", n,
		)
		panic(combinex.ContractViolationError{
			Op:     "cxflatmap upstream OnValue",
			Reason: "value exceeds requested demand",
		})
	}

	c := &child[In, Out]{o: o}
	o.children = append(o.children, c)
	n := len(o.children)
	o.mu.Unlock()

	o.span.AddEvent("child started", cxtrace.WithAttributes(
		cxtrace.IntAttr("children", n),
	))

	o.transform(v).Subscribe(c)
	return cxdemand.None
}

// OnCompletion is called by the upstream publisher.
func (o *operator[In, Out]) OnCompletion(c combinex.Completion) {
	if cxlock.DoValue(&o.mu, func() bool { return o.upState == upstreamWaiting }) {
		o.upstreamBeforeSubscribe("OnCompletion")
	}

	if c.Err != nil {
		o.fail(c.Err, "upstream")
		return
	}

	o.mu.Lock()
	if o.upState != upstreamRelaying {
		o.mu.Unlock()
		return
	}
	o.upState = upstreamCompleted
	o.upstream = nil

	// Completes downstream if there are no children left.
	o.drainLocked(nil)
}

func (o *operator[In, Out]) upstreamBeforeSubscribe(op string) {
	o.log.Error("Upstream signalled flat-map before subscribing", "op", op)
	panic(combinex.ContractViolationError{
		Op:     "cxflatmap upstream " + op,
		Reason: "called before OnSubscribe",
	})
}

// Request is called by the downstream subscriber.
func (o *operator[In, Out]) Request(d cxdemand.Demand) {
	if !d.Positive() {
		return
	}

	o.mu.Lock()
	if o.downState == downstreamCompleted {
		o.mu.Unlock()
		return
	}
	o.downState = downstreamDemanding
	o.demand = o.demand.Add(d)
	o.drainLocked(nil)
}

// Cancel is called by the downstream subscriber.
// It cancels every child and the upstream.
func (o *operator[In, Out]) Cancel() {
	o.mu.Lock()
	if o.downState == downstreamCompleted {
		o.mu.Unlock()
		return
	}
	o.downState = downstreamCompleted
	subs := o.detachAllLocked()
	o.mu.Unlock()

	o.span.AddEvent("cancelled")
	o.span.End()

	for _, s := range subs {
		s.Cancel()
	}
}

// fail records err as the terminal failure if there is none yet,
// cancels everything upstream of the operator,
// and then delivers the failure downstream.
func (o *operator[In, Out]) fail(err error, source string) {
	o.mu.Lock()
	if o.downState == downstreamCompleted || o.failure != nil {
		o.mu.Unlock()
		return
	}
	o.failure = err
	subs := o.detachAllLocked()
	o.mu.Unlock()

	o.log.Debug(
		"Failing flat-map",
		"source", source,
		"err", err,
		"cancelled", len(subs),
	)
	o.span.AddEvent("failed", cxtrace.WithAttributes(
		cxtrace.ErrorAttr(err),
	))

	for _, s := range subs {
		s.Cancel()
	}

	o.mu.Lock()
	o.drainLocked(nil)
}

// detachAllLocked detaches every child, discarding buffered values,
// and stops relaying from upstream.
// It returns the subscriptions to cancel once mu is released.
func (o *operator[In, Out]) detachAllLocked() []combinex.Subscription {
	subs := make([]combinex.Subscription, 0, len(o.children)+1)
	for _, c := range o.children {
		c.detached = true
		if c.sub != nil {
			subs = append(subs, c.sub)
		}
		var zero Out
		c.value = zero
		c.has = false
	}
	o.children = nil

	if o.upState == upstreamRelaying {
		subs = append(subs, o.upstream)
	}
	o.upState = upstreamCompleted
	o.upstream = nil

	return subs
}

// drainLocked delivers buffered child values while downstream has demand,
// and delivers the terminal signal once one is due.
//
// It must be called with mu held, and it returns with mu released.
//
// If requestor's buffered value is delivered,
// the replacement demand for it is returned instead of requested,
// since requestor is the child whose OnValue is running.
func (o *operator[In, Out]) drainLocked(requestor *child[In, Out]) cxdemand.Demand {
	if o.emitting || !o.ready {
		// The goroutine already draining will observe the new state
		// before it stops, or the drain after OnSubscribe will.
		o.mu.Unlock()
		return cxdemand.None
	}
	o.emitting = true

	ret := cxdemand.None
	for {
		if o.downState == downstreamCompleted {
			break
		}

		if err := o.failure; err != nil {
			// Failure wins over anything still buffered.
			o.downState = downstreamCompleted
			o.mu.Unlock()
			cxtrace.SpanError(o.span, err)
			o.span.End()
			o.downstream.OnCompletion(combinex.Failed(err))
			o.mu.Lock()
			break
		}

		if o.upState == upstreamCompleted && len(o.children) == 0 {
			o.downState = downstreamCompleted
			o.mu.Unlock()
			o.span.End()
			o.downstream.OnCompletion(combinex.Finished)
			o.mu.Lock()
			break
		}

		if !o.demand.Positive() {
			break
		}

		// Children move to the back of the list when they buffer,
		// so taking the first buffered child is round-robin
		// in the order values were buffered.
		// With unlimited demand nothing stays buffered for long
		// and this degenerates to list order.
		c := o.nextBufferedLocked()
		if c == nil {
			break
		}

		v := c.value
		var zero Out
		c.value = zero
		c.has = false

		// Count the value against demand before handing it over.
		o.demand = o.demand.SubInt(1)

		var childSub, upSub combinex.Subscription
		switch {
		case c.finished:
			// Its publisher already finished; the slot frees up now.
			o.removeLocked(c)
			if o.upState == upstreamRelaying {
				upSub = o.upstream
			}
		case c == requestor:
			ret = ret.AddInt(1)
		default:
			childSub = c.sub
		}
		o.mu.Unlock()

		more := o.downstream.OnValue(v)

		if childSub != nil {
			childSub.Request(cxdemand.Max(1))
		}
		if upSub != nil {
			upSub.Request(cxdemand.Max(1))
		}

		o.mu.Lock()
		if o.downState != downstreamCompleted {
			o.demand = o.demand.Add(more)
		}
	}

	o.emitting = false
	o.mu.Unlock()
	return ret
}

func (o *operator[In, Out]) nextBufferedLocked() *child[In, Out] {
	for _, c := range o.children {
		if c.has {
			return c
		}
	}
	return nil
}

func (o *operator[In, Out]) removeLocked(c *child[In, Out]) {
	c.detached = true
	if i := slices.Index(o.children, c); i >= 0 {
		o.children = slices.Delete(o.children, i, i+1)
	}
}

func (o *operator[In, Out]) moveToBackLocked(c *child[In, Out]) {
	i := slices.Index(o.children, c)
	if i < 0 || i == len(o.children)-1 {
		return
	}
	o.children = append(slices.Delete(o.children, i, i+1), c)
}
