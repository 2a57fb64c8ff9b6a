package cxchan

import (
	"context"

	combinex "github.com/cx-org/CombineX-sub003"
	"github.com/cx-org/CombineX-sub003/cxdemand"
	"github.com/cx-org/CombineX-sub003/cxlock"
)

// Forwarder is the handle returned by [RunPublisherToChannel].
type Forwarder[T any] struct {
	values chan T
	done   chan struct{}

	// Written before done is closed.
	comp combinex.Completion
}

// Values returns the channel the publisher's values are sent on.
// It is closed once the publisher completes
// or the forwarding context is cancelled.
func (f *Forwarder[T]) Values() <-chan T {
	return f.values
}

// Done is closed when the forwarding goroutine stops.
func (f *Forwarder[T]) Done() <-chan struct{} {
	return f.done
}

// Completion returns the publisher's completion.
// If the forwarding context was cancelled first,
// the completion is a failure with the context's error.
//
// Completion must only be called after Done is closed.
func (f *Forwarder[T]) Completion() combinex.Completion {
	return f.comp
}

// RunPublisherToChannel subscribes to p and starts a background goroutine
// that forwards each value to the returned Forwarder's Values channel.
//
// One value is requested at a time,
// and the next is requested only once the previous one has been received
// from the Values channel, so a slow reader applies backpressure to p.
//
// Cancelling ctx cancels the subscription and stops the goroutine.
func RunPublisherToChannel[T any](ctx context.Context, p combinex.Publisher[T]) *Forwarder[T] {
	f := &Forwarder[T]{
		values: make(chan T),
		done:   make(chan struct{}),
	}

	s := &forwardSubscriber[T]{
		id:     combinex.NewIdentifier(),
		subCh:  make(chan combinex.Subscription, 1),
		events: newStream[forwardEvent[T]](),
	}
	head := s.events

	p.Subscribe(s)
	go f.run(ctx, s, head)

	return f
}

type forwardEvent[T any] struct {
	val  T
	comp *combinex.Completion
}

// forwardSubscriber appends every callback to a stream
// consumed by the forwarding goroutine.
type forwardSubscriber[T any] struct {
	id combinex.Identifier

	// Receives the first subscription only.
	subCh chan combinex.Subscription

	mu         cxlock.Mutex
	subscribed bool
	abandoned  bool                     // The forwarding goroutine stopped before subscribing.
	events     *stream[forwardEvent[T]] // Tail; nil after completion.
}

func (s *forwardSubscriber[T]) ID() combinex.Identifier { return s.id }

func (s *forwardSubscriber[T]) OnSubscribe(sub combinex.Subscription) {
	s.mu.Lock()
	if s.subscribed || s.abandoned {
		s.mu.Unlock()
		sub.Cancel()
		return
	}
	s.subscribed = true

	// Buffered, so this never blocks for the first subscription.
	// Sent under mu so that abandon cannot miss it.
	s.subCh <- sub
	s.mu.Unlock()
}

// abandon stops accepting a subscription,
// returning one that already arrived so the caller can cancel it.
func (s *forwardSubscriber[T]) abandon() combinex.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abandoned = true
	select {
	case sub := <-s.subCh:
		return sub
	default:
		return nil
	}
}

func (s *forwardSubscriber[T]) OnValue(v T) cxdemand.Demand {
	cxlock.Do(&s.mu, func() {
		if s.events != nil {
			s.events = s.events.publish(forwardEvent[T]{val: v})
		}
	})
	return cxdemand.None
}

func (s *forwardSubscriber[T]) OnCompletion(c combinex.Completion) {
	cxlock.Do(&s.mu, func() {
		if s.events != nil {
			s.events.publish(forwardEvent[T]{comp: &c})
			s.events = nil
		}
	})
}

func (f *Forwarder[T]) run(
	ctx context.Context,
	s *forwardSubscriber[T],
	events *stream[forwardEvent[T]],
) {
	defer close(f.done)
	defer close(f.values)

	var sub combinex.Subscription
	select {
	case sub = <-s.subCh:
	default:
		// Asynchronous publisher.
		select {
		case <-ctx.Done():
			f.comp = combinex.Failed(ctx.Err())
			if late := s.abandon(); late != nil {
				late.Cancel()
			}
			return
		case sub = <-s.subCh:
		}
	}

	sub.Request(cxdemand.Max(1))

	for {
		select {
		case <-ctx.Done():
			sub.Cancel()
			f.comp = combinex.Failed(ctx.Err())
			return

		case <-events.ready:
			ev := events.val
			events = events.next

			if ev.comp != nil {
				f.comp = *ev.comp
				return
			}

			select {
			case <-ctx.Done():
				sub.Cancel()
				f.comp = combinex.Failed(ctx.Err())
				return
			case f.values <- ev.val:
			}

			sub.Request(cxdemand.Max(1))
		}
	}
}
