// Package cxschedule contains the [Scheduler] abstraction,
// the deterministic [VirtualTime] scheduler used to test time-based behavior,
// and the [Every] timer publisher built on any Scheduler.
package cxschedule

import (
	"time"

	combinex "github.com/cx-org/CombineX-sub003"
)

// Scheduler runs actions at points in time.
type Scheduler interface {
	// Now returns the scheduler's current time.
	Now() time.Time

	// Schedule runs action as soon as possible.
	Schedule(action func())

	// ScheduleAfter runs action once the scheduler's time reaches at.
	ScheduleAfter(at time.Time, action func())

	// ScheduleRepeating runs action at first
	// and then every interval after each previous firing,
	// until the returned Cancellable is cancelled.
	ScheduleRepeating(first time.Time, interval time.Duration, action func()) combinex.Cancellable
}
