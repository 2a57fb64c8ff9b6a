package cxflatmap

import (
	combinex "github.com/cx-org/CombineX-sub003"
	"github.com/cx-org/CombineX-sub003/cxdemand"
)

// child subscribes to one derived publisher.
// All fields are guarded by the operator's mu.
type child[In, Out any] struct {
	o *operator[In, Out]

	sub combinex.Subscription

	// Single-slot buffer. A new value overwrites an undelivered one.
	value Out
	has   bool

	// The derived publisher finished while a value was still buffered.
	finished bool

	// Removed from the operator; everything further is ignored.
	detached bool
}

func (c *child[In, Out]) OnSubscribe(s combinex.Subscription) {
	o := c.o

	o.mu.Lock()
	if c.detached || c.sub != nil {
		o.mu.Unlock()
		s.Cancel()
		return
	}
	c.sub = s
	o.mu.Unlock()

	s.Request(cxdemand.Max(1))
}

func (c *child[In, Out]) OnValue(v Out) cxdemand.Demand {
	o := c.o

	o.mu.Lock()
	if c.detached || o.downState == downstreamCompleted {
		o.mu.Unlock()
		return cxdemand.None
	}
	if c.sub == nil {
		o.mu.Unlock()
		c.beforeSubscribe("OnValue")
	}

	c.value = v
	c.has = true

	if o.emitting || !o.ready || !o.demand.Positive() {
		// Cannot deliver right now: wait behind the other buffered children.
		o.moveToBackLocked(c)
	}

	return o.drainLocked(c)
}

func (c *child[In, Out]) OnCompletion(comp combinex.Completion) {
	o := c.o

	o.mu.Lock()
	if c.detached {
		o.mu.Unlock()
		return
	}
	if c.sub == nil {
		o.mu.Unlock()
		c.beforeSubscribe("OnCompletion")
	}

	if comp.Err != nil {
		o.mu.Unlock()
		o.fail(comp.Err, "child")
		return
	}

	o.span.AddEvent("child finished")

	var upSub combinex.Subscription
	if c.has {
		// Removed once its buffered value is delivered.
		c.finished = true
	} else {
		o.removeLocked(c)
		if o.upState == upstreamRelaying {
			upSub = o.upstream
		}
	}
	o.mu.Unlock()

	if upSub != nil {
		// Keep the window of children full.
		upSub.Request(cxdemand.Max(1))
	}

	o.mu.Lock()
	o.drainLocked(nil)
}

func (c *child[In, Out]) beforeSubscribe(op string) {
	c.o.log.Error("Derived publisher signalled flat-map before subscribing", "op", op)
	panic(combinex.ContractViolationError{
		Op:     "cxflatmap child " + op,
		Reason: "called before OnSubscribe",
	})
}
