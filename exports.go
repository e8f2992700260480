package grain

import (
	"github.com/xraph/grain/events"
	"github.com/xraph/grain/types"
)

// Re-export common types for convenience so users don't have to import the
// model packages.

// Snapshot is re-exported from the types package.
type Snapshot = types.Snapshot

// DomainEvent is re-exported from the events package.
type DomainEvent = events.DomainEvent

// Stream is re-exported from the events package.
type Stream = events.Stream

// Subscriber is re-exported from the events package.
type Subscriber = events.Subscriber

// Re-export constructors
var (
	NewEvent = events.New
)
