package cxsubject

import (
	"log/slog"

	combinex "github.com/cx-org/CombineX-sub003"
)

// Passthrough is a subject that holds no value,
// forwarding each Send to the subscribers that currently have demand.
type Passthrough[T any] struct {
	c *core[T]
}

// NewPassthrough returns a new Passthrough subject.
func NewPassthrough[T any](log *slog.Logger) *Passthrough[T] {
	var zero T
	return &Passthrough[T]{
		c: newCore(log, false, zero),
	}
}

// Subscribe attaches s.
// After completion, s receives an empty subscription
// followed immediately by the stored completion.
func (p *Passthrough[T]) Subscribe(s combinex.Subscriber[T]) {
	p.c.subscribe(s)
}

// Send delivers v to every subscriber with outstanding demand.
// Send after completion is a no-op.
func (p *Passthrough[T]) Send(v T) {
	p.c.send(v)
}

// SendCompletion completes every current subscriber
// and drops them. Only the first completion has any effect.
func (p *Passthrough[T]) SendCompletion(c combinex.Completion) {
	p.c.sendCompletion(c)
}

// AsSubscriber returns a subscriber that requests unlimited demand
// from any publisher it is attached to, forwarding values to Send
// and the completion to SendCompletion.
func (p *Passthrough[T]) AsSubscriber() combinex.Subscriber[T] {
	return &upstreamSubscriber[T]{c: p.c}
}

// SubscriberCount returns the number of live subscriptions.
func (p *Passthrough[T]) SubscriberCount() int {
	return p.c.subscriberCount()
}
