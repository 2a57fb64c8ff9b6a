package combinex

import "github.com/google/uuid"

// Identifier uniquely identifies a subscription or subscriber instance.
// It is primarily used to correlate log entries.
type Identifier uuid.UUID

// NewIdentifier returns a new random Identifier.
func NewIdentifier() Identifier {
	return Identifier(uuid.New())
}

func (id Identifier) String() string {
	return uuid.UUID(id).String()
}

// Identifiable is implemented by subscriptions and subscribers
// that carry an [Identifier].
type Identifiable interface {
	ID() Identifier
}
