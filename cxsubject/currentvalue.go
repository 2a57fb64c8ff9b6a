package cxsubject

import (
	"log/slog"

	combinex "github.com/cx-org/CombineX-sub003"
)

// CurrentValue is a subject that holds the most recent value.
//
// A new subscriber receives the current value as part of
// its first request for positive demand, not at subscribe time.
//
// That initial delivery is not ordered against concurrent calls to Send:
// if Send races with a subscriber's first request,
// the subscriber's first value is whichever value was current
// when the request took effect,
// and the value that was current when it subscribed may never be observed.
// A value is never delivered twice to the same subscriber this way.
type CurrentValue[T any] struct {
	c *core[T]
}

// NewCurrentValue returns a new CurrentValue subject holding initial.
func NewCurrentValue[T any](log *slog.Logger, initial T) *CurrentValue[T] {
	return &CurrentValue[T]{
		c: newCore(log, true, initial),
	}
}

func (s *CurrentValue[T]) Subscribe(sub combinex.Subscriber[T]) {
	s.c.subscribe(sub)
}

// Value returns the current value.
// It never waits for delivery to subscribers.
// After completion it keeps returning the last value.
func (s *CurrentValue[T]) Value() T {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.c.value
}

// SetValue is equivalent to Send.
func (s *CurrentValue[T]) SetValue(v T) {
	s.c.send(v)
}

// Send stores v as the current value and delivers it
// to every subscriber with outstanding demand.
// Send after completion neither stores nor delivers.
func (s *CurrentValue[T]) Send(v T) {
	s.c.send(v)
}

// SendCompletion completes every current subscriber.
// Only the first completion has any effect.
func (s *CurrentValue[T]) SendCompletion(c combinex.Completion) {
	s.c.sendCompletion(c)
}

// AsSubscriber returns a subscriber that requests unlimited demand
// from any publisher it is attached to, forwarding values to Send
// and the completion to SendCompletion.
func (s *CurrentValue[T]) AsSubscriber() combinex.Subscriber[T] {
	return &upstreamSubscriber[T]{c: s.c}
}

// SubscriberCount returns the number of live subscriptions.
func (s *CurrentValue[T]) SubscriberCount() int {
	return s.c.subscriberCount()
}
