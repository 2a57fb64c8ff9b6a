package combinextest

import (
	combinex "github.com/cx-org/CombineX-sub003"
	"github.com/cx-org/CombineX-sub003/cxdemand"
	"github.com/cx-org/CombineX-sub003/cxlock"
)

// ManualPublisher is a publisher driven directly by a test.
// Every Subscribe creates a [*ManualSubscription]
// through which the test delivers values and completion.
type ManualPublisher[T any] struct {
	mu   cxlock.Mutex
	subs []*ManualSubscription[T]

	subscribed chan *ManualSubscription[T]
}

// NewManualPublisher returns a new ManualPublisher.
func NewManualPublisher[T any]() *ManualPublisher[T] {
	return &ManualPublisher[T]{
		// Buffered so that Subscribe never blocks on a test
		// that does not read the channel.
		subscribed: make(chan *ManualSubscription[T], 64),
	}
}

func (p *ManualPublisher[T]) Subscribe(s combinex.Subscriber[T]) {
	ms := &ManualSubscription[T]{
		id:  combinex.NewIdentifier(),
		sub: s,
	}

	cxlock.Do(&p.mu, func() { p.subs = append(p.subs, ms) })

	select {
	case p.subscribed <- ms:
	default:
	}

	s.OnSubscribe(ms)
}

// Subscriptions returns every subscription created so far, in order.
func (p *ManualPublisher[T]) Subscriptions() []*ManualSubscription[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*ManualSubscription[T], len(p.subs))
	copy(out, p.subs)
	return out
}

// Last returns the most recent subscription.
// It panics if there are none.
func (p *ManualPublisher[T]) Last() *ManualSubscription[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subs[len(p.subs)-1]
}

// Subscribed returns a channel that receives each new subscription.
func (p *ManualPublisher[T]) Subscribed() <-chan *ManualSubscription[T] {
	return p.subscribed
}

// ManualSubscription is the subscription side of a [ManualPublisher].
type ManualSubscription[T any] struct {
	id  combinex.Identifier
	sub combinex.Subscriber[T]

	mu          cxlock.Mutex
	requested   cxdemand.Demand
	outstanding cxdemand.Demand
	requests    int
	cancelled   bool
	completed   bool
}

func (s *ManualSubscription[T]) ID() combinex.Identifier { return s.id }

func (s *ManualSubscription[T]) Request(d cxdemand.Demand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	s.requested = s.requested.Add(d)
	s.outstanding = s.outstanding.Add(d)
}

func (s *ManualSubscription[T]) Cancel() {
	cxlock.Do(&s.mu, func() { s.cancelled = true })
}

// Send delivers v to the subscriber, consuming one unit of outstanding demand.
//
// Send panics with [combinex.ContractViolationError]
// if there is no outstanding demand.
// Sends after cancellation or completion are dropped and report false.
func (s *ManualSubscription[T]) Send(v T) bool {
	s.mu.Lock()
	if s.cancelled || s.completed {
		s.mu.Unlock()
		return false
	}
	if !s.outstanding.Positive() {
		s.mu.Unlock()
		panic(combinex.ContractViolationError{Op: "ManualSubscription.Send", Reason: "no outstanding demand"})
	}
	s.outstanding = s.outstanding.SubInt(1)
	s.mu.Unlock()

	more := s.sub.OnValue(v)

	s.mu.Lock()
	s.outstanding = s.outstanding.Add(more)
	s.requested = s.requested.Add(more)
	s.mu.Unlock()
	return true
}

// Complete delivers c to the subscriber.
// Completing after cancellation or a previous completion is dropped
// and reports false.
func (s *ManualSubscription[T]) Complete(c combinex.Completion) bool {
	s.mu.Lock()
	if s.cancelled || s.completed {
		s.mu.Unlock()
		return false
	}
	s.completed = true
	s.mu.Unlock()

	s.sub.OnCompletion(c)
	return true
}

// Requested returns the cumulative demand requested,
// including demand returned from OnValue.
func (s *ManualSubscription[T]) Requested() cxdemand.Demand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requested
}

// Outstanding returns the demand not yet consumed by Send.
func (s *ManualSubscription[T]) Outstanding() cxdemand.Demand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outstanding
}

// Cancelled reports whether the subscriber cancelled.
func (s *ManualSubscription[T]) Cancelled() bool {
	return cxlock.DoValue(&s.mu, func() bool { return s.cancelled })
}
