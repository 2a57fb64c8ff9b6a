package cxsubject

import (
	"log/slog"
	"sync/atomic"
	"weak"

	combinex "github.com/cx-org/CombineX-sub003"
	"github.com/cx-org/CombineX-sub003/cxdemand"
	"github.com/cx-org/CombineX-sub003/cxlock"
	"github.com/cx-org/CombineX-sub003/internal/cxarena"
)

// record is the subject-owned state for one subscriber.
// All fields except sub are guarded by the core's mu.
type record[T any] struct {
	id  combinex.Identifier
	h   cxarena.Handle
	sub combinex.Subscriber[T]

	demand cxdemand.Demand

	// For CurrentValue subjects, set until the first positive request
	// has delivered the cached value.
	needsInitial bool

	// The send sequence of the value delivered as the initial value,
	// so a concurrent Send of that same value is not delivered twice.
	initialSeq uint64
}

// core is the state shared by both subject variants.
type core[T any] struct {
	log *slog.Logger

	// Whether this is a CurrentValue subject.
	current bool

	// Held for every callback into any subscriber,
	// so that no two callbacks from this subject are ever concurrent.
	// Recursive because a subscriber may call back into the subject
	// (Send, SendCompletion, Request) from inside its own callback.
	//
	// Lock order is delivery, then mu.
	delivery cxlock.RecursiveMutex

	mu         cxlock.Mutex
	records    *cxarena.Arena[record[T]]
	completion *combinex.Completion
	upstreams  []combinex.Subscription

	value T
	seq   uint64
}

func newCore[T any](log *slog.Logger, current bool, initial T) *core[T] {
	return &core[T]{
		log:     log,
		current: current,
		records: cxarena.New[record[T]](),
		value:   initial,
	}
}

func (c *core[T]) subscribe(s combinex.Subscriber[T]) {
	// Held through OnSubscribe, so that a concurrent Send or completion
	// cannot reach the subscriber before its subscription does.
	c.delivery.Lock()
	defer c.delivery.Unlock()

	c.mu.Lock()
	if comp := c.completion; comp != nil {
		c.mu.Unlock()

		c.log.Debug("Replaying completion to late subscriber", "completion", comp)
		s.OnSubscribe(combinex.EmptySubscription)
		s.OnCompletion(*comp)
		return
	}

	r := &record[T]{
		id:           combinex.NewIdentifier(),
		sub:          s,
		needsInitial: c.current,
	}
	r.h = c.records.Insert(r)
	c.mu.Unlock()

	s.OnSubscribe(&subscription[T]{
		id:   r.id,
		core: weak.Make(c),
		h:    r.h,
	})
}

func (c *core[T]) send(v T) {
	c.delivery.Lock()
	defer c.delivery.Unlock()

	c.mu.Lock()
	if c.completion != nil {
		c.mu.Unlock()
		return
	}

	if c.current {
		c.value = v
	}
	c.seq++
	seq := c.seq
	snapshot := c.records.Values(nil)
	c.mu.Unlock()

	for _, r := range snapshot {
		c.deliverLocked(r, v, seq)
	}
}

// deliverLocked must be called with delivery held.
func (c *core[T]) deliverLocked(r *record[T], v T, seq uint64) {
	c.mu.Lock()
	if c.records.Get(r.h) != r ||
		r.needsInitial ||
		seq <= r.initialSeq ||
		!r.demand.Positive() {
		// Cancelled, completed, waiting for its initial value,
		// already holding this value, or without demand.
		c.mu.Unlock()
		return
	}

	// Consume the demand before handing control to the subscriber.
	r.demand = r.demand.SubInt(1)
	c.mu.Unlock()

	more := r.sub.OnValue(v)
	c.addDemand(r, more)
}

func (c *core[T]) addDemand(r *record[T], d cxdemand.Demand) {
	if !d.Positive() {
		return
	}

	cxlock.Do(&c.mu, func() {
		if c.records.Get(r.h) == r {
			r.demand = r.demand.Add(d)
		}
	})
}

func (c *core[T]) sendCompletion(comp combinex.Completion) {
	c.delivery.Lock()
	defer c.delivery.Unlock()

	c.mu.Lock()
	if c.completion != nil {
		c.mu.Unlock()
		return
	}

	c.completion = &comp
	snapshot := c.records.Values(nil)
	c.records.Clear()
	upstreams := c.upstreams
	c.upstreams = nil
	c.mu.Unlock()

	c.log.Debug(
		"Subject completed",
		"completion", comp,
		"subscribers", len(snapshot),
	)

	for _, u := range upstreams {
		u.Cancel()
	}

	for _, r := range snapshot {
		r.sub.OnCompletion(comp)
	}
}

func (c *core[T]) request(h cxarena.Handle, d cxdemand.Demand) {
	if !d.Positive() {
		return
	}

	c.mu.Lock()
	r := c.records.Get(h)
	if r == nil {
		c.mu.Unlock()
		return
	}
	if !r.needsInitial {
		r.demand = r.demand.Add(d)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	// First positive request on a CurrentValue subject:
	// deliver whatever value is current now.
	// A Send racing with this request may change which value that is.
	c.delivery.Lock()
	defer c.delivery.Unlock()

	c.mu.Lock()
	if c.records.Get(h) != r {
		c.mu.Unlock()
		return
	}
	r.demand = r.demand.Add(d)
	if !r.needsInitial {
		// Another request got here first.
		c.mu.Unlock()
		return
	}
	r.needsInitial = false
	r.initialSeq = c.seq
	r.demand = r.demand.SubInt(1)
	v := c.value
	c.mu.Unlock()

	more := r.sub.OnValue(v)
	c.addDemand(r, more)
}

func (c *core[T]) cancel(h cxarena.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records.Remove(h)
}

func (c *core[T]) subscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records.Len()
}

func (c *core[T]) addUpstream(s combinex.Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.completion != nil {
		return false
	}
	c.upstreams = append(c.upstreams, s)
	return true
}

// subscription is the handle given to a subscriber.
// It refers to the subject only weakly and to its record only by handle,
// so it never keeps either alive.
type subscription[T any] struct {
	id   combinex.Identifier
	core weak.Pointer[core[T]]
	h    cxarena.Handle
}

func (s *subscription[T]) ID() combinex.Identifier { return s.id }

func (s *subscription[T]) Request(d cxdemand.Demand) {
	if c := s.core.Value(); c != nil {
		c.request(s.h, d)
	}
}

func (s *subscription[T]) Cancel() {
	if c := s.core.Value(); c != nil {
		c.cancel(s.h)
	}
}

// upstreamSubscriber feeds values from another publisher into a subject.
type upstreamSubscriber[T any] struct {
	c *core[T]

	subscribed atomic.Bool
}

func (u *upstreamSubscriber[T]) OnSubscribe(s combinex.Subscription) {
	if !u.subscribed.CompareAndSwap(false, true) || !u.c.addUpstream(s) {
		s.Cancel()
		return
	}
	s.Request(cxdemand.Unlimited)
}

func (u *upstreamSubscriber[T]) OnValue(v T) cxdemand.Demand {
	u.checkSubscribed("OnValue")
	u.c.send(v)
	return cxdemand.None
}

func (u *upstreamSubscriber[T]) OnCompletion(comp combinex.Completion) {
	u.checkSubscribed("OnCompletion")
	u.c.sendCompletion(comp)
}

func (u *upstreamSubscriber[T]) checkSubscribed(op string) {
	if u.subscribed.Load() {
		return
	}

	u.c.log.Error("Upstream signalled a subject before subscribing", "op", op)
	panic(combinex.ContractViolationError{
		Op:     "cxsubject upstream " + op,
		Reason: "called before OnSubscribe",
	})
}
