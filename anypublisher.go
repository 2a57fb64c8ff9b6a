package combinex

// PublisherFunc adapts a function to the [Publisher] interface.
type PublisherFunc[T any] func(Subscriber[T])

func (f PublisherFunc[T]) Subscribe(s Subscriber[T]) {
	f(s)
}

// AnyPublisher hides the concrete type of a [Publisher],
// so that pipelines built from different publishers have a uniform type.
type AnyPublisher[T any] struct {
	box Publisher[T]
}

// EraseToAnyPublisher wraps p in an [AnyPublisher].
// Wrapping an AnyPublisher returns it unchanged.
func EraseToAnyPublisher[T any](p Publisher[T]) AnyPublisher[T] {
	if ap, ok := p.(AnyPublisher[T]); ok {
		return ap
	}
	return AnyPublisher[T]{box: p}
}

func (p AnyPublisher[T]) Subscribe(s Subscriber[T]) {
	if p.box == nil {
		panic(ContractViolationError{Op: "AnyPublisher.Subscribe", Reason: "zero AnyPublisher"})
	}
	p.box.Subscribe(s)
}
