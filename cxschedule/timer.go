package cxschedule

import (
	"time"

	combinex "github.com/cx-org/CombineX-sub003"
	"github.com/cx-org/CombineX-sub003/cxdemand"
	"github.com/cx-org/CombineX-sub003/cxlock"
)

// Every returns a publisher that emits the scheduler's time
// once per interval, starting one interval after
// a subscriber first requests a positive demand.
//
// A tick with no outstanding demand is dropped rather than buffered.
// The publisher never completes; cancel the subscription to stop it.
//
// Every panics with [combinex.ContractViolationError]
// if interval is not positive.
func Every(s Scheduler, interval time.Duration) combinex.Publisher[time.Time] {
	if interval <= 0 {
		panic(combinex.ContractViolationError{
			Op:     "cxschedule.Every",
			Reason: "interval must be positive, got " + interval.String(),
		})
	}

	return combinex.PublisherFunc[time.Time](func(sub combinex.Subscriber[time.Time]) {
		sub.OnSubscribe(&timerSubscription{
			id:       combinex.NewIdentifier(),
			s:        s,
			interval: interval,
			sub:      sub,
		})
	})
}

type timerSubscription struct {
	id combinex.Identifier

	s        Scheduler
	interval time.Duration

	// mu is never held while calling into the scheduler,
	// because ticks run with the scheduler's own lock held.
	mu      cxlock.Mutex
	demand  cxdemand.Demand
	started bool
	tok     combinex.Cancellable

	// Nil once cancelled.
	sub combinex.Subscriber[time.Time]
}

func (t *timerSubscription) ID() combinex.Identifier { return t.id }

func (t *timerSubscription) Request(d cxdemand.Demand) {
	if !d.Positive() {
		return
	}

	t.mu.Lock()
	if t.sub == nil {
		t.mu.Unlock()
		return
	}
	t.demand = t.demand.Add(d)
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	tok := t.s.ScheduleRepeating(t.s.Now().Add(t.interval), t.interval, t.tick)

	t.mu.Lock()
	if t.sub == nil {
		// Cancelled while scheduling.
		t.mu.Unlock()
		tok.Cancel()
		return
	}
	t.tok = tok
	t.mu.Unlock()
}

func (t *timerSubscription) tick() {
	now := t.s.Now()

	t.mu.Lock()
	sub := t.sub
	if sub == nil || !t.demand.Positive() {
		t.mu.Unlock()
		return
	}
	t.demand = t.demand.SubInt(1)
	t.mu.Unlock()

	more := sub.OnValue(now)
	cxlock.Do(&t.mu, func() { t.demand = t.demand.Add(more) })
}

func (t *timerSubscription) Cancel() {
	t.mu.Lock()
	t.sub = nil
	tok := t.tok
	t.tok = nil
	t.mu.Unlock()

	if tok != nil {
		tok.Cancel()
	}
}
