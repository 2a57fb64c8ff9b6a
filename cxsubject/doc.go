// Package cxsubject contains subjects:
// publishers that are driven imperatively through Send
// and fan each value out to any number of subscribers.
//
// [Passthrough] forwards values only;
// [CurrentValue] also holds the latest value and hands it
// to each new subscriber once that subscriber requests demand.
//
// Subjects never buffer.
// A value sent while a subscriber has no outstanding demand
// is dropped for that subscriber only.
// A completion is never dropped: every subscriber registered at the time
// receives it exactly once, and later subscribers receive it as a replay.
//
// All callbacks from one subject are serialized,
// even when Send is called from multiple goroutines.
// A subscriber may call back into the subject it is being called from;
// such calls are delivered immediately, on the same goroutine.
// Sending into another subject from a callback holds this subject's
// delivery lock meanwhile, so two subjects that feed each other
// from different goroutines can deadlock.
package cxsubject

import combinex "github.com/cx-org/CombineX-sub003"

// Subject is a publisher that can be sent values and a completion directly.
type Subject[T any] interface {
	combinex.Publisher[T]

	Send(v T)
	SendCompletion(c combinex.Completion)
}
