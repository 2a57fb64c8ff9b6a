package cxschedule

import (
	"container/heap"
	"log/slog"
	"time"

	combinex "github.com/cx-org/CombineX-sub003"
	"github.com/cx-org/CombineX-sub003/cxlock"
)

// VirtualTimeConfig is the configuration for [NewVirtualTime].
type VirtualTimeConfig struct {
	// The initial value of Now.
	// The zero time is a fine choice for most tests.
	Start time.Time
}

// VirtualTime is a [Scheduler] whose clock only moves
// when AdvanceTo or AdvanceBy is called.
//
// Actions run synchronously on the goroutine that advances the clock,
// in order of their scheduled time,
// with ties broken by the order in which they were scheduled.
//
// Actions may call back into the scheduler,
// for instance to schedule further actions or cancel repeating ones;
// the scheduler lock is reentrant for that reason.
type VirtualTime struct {
	log *slog.Logger

	mu    cxlock.RecursiveMutex
	now   time.Time
	seq   uint64
	queue actionQueue
}

// NewVirtualTime returns a new VirtualTime scheduler.
func NewVirtualTime(log *slog.Logger, cfg VirtualTimeConfig) *VirtualTime {
	return &VirtualTime{
		log: log,
		now: cfg.Start,
	}
}

func (s *VirtualTime) Now() time.Time {
	return cxlock.DoValue(&s.mu, func() time.Time { return s.now })
}

// Pending returns the number of actions waiting to run.
func (s *VirtualTime) Pending() int {
	return cxlock.DoValue(&s.mu, func() int { return len(s.queue) })
}

// Schedule enqueues action at the current virtual time.
// It runs on the next call to AdvanceTo or AdvanceBy.
func (s *VirtualTime) Schedule(action func()) {
	cxlock.Do(&s.mu, func() {
		s.pushLocked(&scheduledAction{at: s.now, action: action})
	})
}

// ScheduleAfter enqueues action at the virtual time at.
// A time in the past is due on the next advance.
func (s *VirtualTime) ScheduleAfter(at time.Time, action func()) {
	cxlock.Do(&s.mu, func() {
		s.pushLocked(&scheduledAction{at: at, action: action})
	})
}

// ScheduleRepeating enqueues action at first,
// re-enqueueing it interval after each firing until cancelled.
// Cancelling prevents any occurrence that has not yet started.
//
// ScheduleRepeating panics with [combinex.ContractViolationError]
// if interval is not positive.
func (s *VirtualTime) ScheduleRepeating(
	first time.Time, interval time.Duration, action func(),
) combinex.Cancellable {
	if interval <= 0 {
		panic(combinex.ContractViolationError{
			Op:     "VirtualTime.ScheduleRepeating",
			Reason: "interval must be positive, got " + interval.String(),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tok := &repeatToken{s: s}
	a := &scheduledAction{
		at:       first,
		action:   action,
		interval: interval,
		token:    tok,
	}
	tok.pending = a
	s.pushLocked(a)
	return tok
}

func (s *VirtualTime) pushLocked(a *scheduledAction) {
	s.seq++
	a.seq = s.seq
	heap.Push(&s.queue, a)
}

// AdvanceTo runs every action due at or before t, in order,
// setting Now to each action's time before running it.
// Afterward Now is t, even if nothing ran.
//
// Advancing to a time before Now runs whatever is already due
// but does not move the clock backward.
func (s *VirtualTime) AdvanceTo(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ran := 0
	for {
		a := s.queue.peek()
		if a == nil || a.at.After(t) {
			break
		}
		heap.Pop(&s.queue)

		if a.at.After(s.now) {
			s.now = a.at
		}

		if tok := a.token; tok != nil {
			tok.pending = nil
		}

		a.action()
		ran++

		if tok := a.token; tok != nil && !tok.cancelled {
			next := &scheduledAction{
				at:       a.at.Add(a.interval),
				action:   a.action,
				interval: a.interval,
				token:    tok,
			}
			tok.pending = next
			s.pushLocked(next)
		}
	}

	if t.After(s.now) {
		s.now = t
	}

	s.log.Debug(
		"Advanced virtual time",
		"now", s.now,
		"ran", ran,
		"pending", len(s.queue),
	)
}

// AdvanceBy is AdvanceTo(Now().Add(d)).
func (s *VirtualTime) AdvanceBy(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AdvanceTo(s.now.Add(d))
}

// repeatToken cancels a repeating action.
type repeatToken struct {
	s *VirtualTime

	// Guarded by s.mu.
	cancelled bool
	pending   *scheduledAction
}

func (t *repeatToken) Cancel() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.cancelled {
		return
	}
	t.cancelled = true

	if t.pending != nil {
		t.s.queue.remove(t.pending)
		t.pending = nil
	}
}
