package cxchan

// stream is a linked list of event-driven values
// with a single writer and a single reader.
// The reader waits on ready before reading val or next.
type stream[T any] struct {
	ready chan struct{}
	next  *stream[T]
	val   T
}

func newStream[T any]() *stream[T] {
	return &stream[T]{
		ready: make(chan struct{}),
	}
}

// publish assigns s's value, initializes s.next,
// and then closes s.ready.
// It panics if called twice for the same s.
func (s *stream[T]) publish(v T) *stream[T] {
	s.val = v
	s.next = newStream[T]()
	close(s.ready)
	return s.next
}
