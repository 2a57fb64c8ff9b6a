package cxchan

import (
	"context"
	"sync"

	combinex "github.com/cx-org/CombineX-sub003"
	"github.com/cx-org/CombineX-sub003/cxdemand"
	"github.com/cx-org/CombineX-sub003/cxlock"
)

// FromChannel returns a publisher that delivers values received from ch
// only while its subscriber has outstanding demand.
// At most one received value is held back waiting for demand.
//
// Each subscription starts its own goroutine,
// so concurrent subscribers compete for the channel's values.
// The subscriber finishes once ch is closed and every received value
// has been delivered; completion itself needs no demand.
// It fails with ctx.Err() if ctx is cancelled first.
func FromChannel[T any](ctx context.Context, ch <-chan T) combinex.Publisher[T] {
	return combinex.PublisherFunc[T](func(s combinex.Subscriber[T]) {
		cs := &chanSubscription[T]{
			id:        combinex.NewIdentifier(),
			wake:      make(chan struct{}, 1),
			cancelled: make(chan struct{}),
		}
		s.OnSubscribe(cs)
		go cs.run(ctx, ch, s)
	})
}

type chanSubscription[T any] struct {
	id combinex.Identifier

	mu     cxlock.Mutex
	demand cxdemand.Demand

	// Signaled when demand goes from zero to positive.
	wake chan struct{}

	cancelOnce sync.Once
	cancelled  chan struct{}
}

func (s *chanSubscription[T]) ID() combinex.Identifier { return s.id }

func (s *chanSubscription[T]) Request(d cxdemand.Demand) {
	if !d.Positive() {
		return
	}

	cxlock.Do(&s.mu, func() {
		s.demand = s.demand.Add(d)
	})

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *chanSubscription[T]) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelled)
	})
}

func (s *chanSubscription[T]) isCancelled() bool {
	select {
	case <-s.cancelled:
		return true
	default:
		return false
	}
}

func (s *chanSubscription[T]) hasDemand() bool {
	return cxlock.DoValue(&s.mu, func() bool { return s.demand.Positive() })
}

func (s *chanSubscription[T]) run(ctx context.Context, ch <-chan T, sub combinex.Subscriber[T]) {
	for {
		// Receive one value ahead of demand,
		// so that a closed channel completes the subscriber
		// even when it has nothing outstanding.
		var v T
		select {
		case <-ctx.Done():
			s.fail(ctx, sub)
			return

		case <-s.cancelled:
			return

		case got, ok := <-ch:
			if s.isCancelled() {
				return
			}
			if !ok {
				sub.OnCompletion(combinex.Finished)
				return
			}
			v = got
		}

		for !s.hasDemand() {
			select {
			case <-ctx.Done():
				s.fail(ctx, sub)
				return
			case <-s.cancelled:
				return
			case <-s.wake:
			}
		}

		if s.isCancelled() {
			return
		}

		cxlock.Do(&s.mu, func() {
			s.demand = s.demand.SubInt(1)
		})

		more := sub.OnValue(v)
		if more.Positive() {
			cxlock.Do(&s.mu, func() {
				s.demand = s.demand.Add(more)
			})
		}
	}
}

func (s *chanSubscription[T]) fail(ctx context.Context, sub combinex.Subscriber[T]) {
	if s.isCancelled() {
		return
	}
	sub.OnCompletion(combinex.Failed(ctx.Err()))
}
