// Package events defines the domain event model for the audit trail.
//
// Every committed command emits one or more domain events. Payloads carry
// enough detail for a downstream projection to reconstruct the effect without
// re-querying the source: a consumption event carries both the quantity
// consumed and the resulting quantity on hand, not just a delta.
package events

import (
	"time"

	"github.com/xraph/grain/id"
)

// DomainEvent is a single committed state transition.
type DomainEvent struct {
	ID             id.EventID     `json:"id"`
	AggregateID    string         `json:"aggregate_id"`
	OrganizationID string         `json:"organization_id"`
	Type           string         `json:"type"`
	Payload        map[string]any `json:"payload,omitempty"`
	// OccurredAt is fixed at command-commit time, not publish time.
	OccurredAt time.Time `json:"occurred_at"`
}

// New creates a DomainEvent stamped with a fresh event ID and the given
// commit time.
func New(aggregateID, organizationID, eventType string, payload map[string]any, occurredAt time.Time) DomainEvent {
	return DomainEvent{
		ID:             id.NewEventID(),
		AggregateID:    aggregateID,
		OrganizationID: organizationID,
		Type:           eventType,
		Payload:        payload,
		OccurredAt:     occurredAt,
	}
}

// Stream identifies an ordered per-tenant event stream.
type Stream struct {
	Namespace      string `json:"namespace"`
	OrganizationID string `json:"organization_id"`
}

// String returns the canonical stream identifier.
func (s Stream) String() string {
	return s.Namespace + ":" + s.OrganizationID
}

// Subscriber receives committed events, per-stream in order. Delivery is
// at-least-once: subscribers must tolerate duplicates and rely only on
// ordering. A returned error triggers a single redelivery attempt.
type Subscriber func(evt DomainEvent) error

// ListOpts filters audit trail queries.
type ListOpts struct {
	AggregateID string
	Type        string
	Start       time.Time
	End         time.Time
	Limit       int
	Offset      int
}
