// Package types provides common types used across grain.
package types

import (
	"encoding/json"
	"time"
)

// Snapshot is the persisted state of a single entity, addressed by its
// canonical routing key.
//
// Version starts at 1 when the entity is created and increases by exactly 1
// per committed command. A snapshot's effects are not committed until it has
// been persisted, so no reader ever observes a version regression.
//
// Entities are never physically deleted; archival is a status flag.
type Snapshot struct {
	Key            string          `json:"key"`
	Version        int64           `json:"version"`
	State          json.RawMessage `json:"state"`
	LastModifiedAt time.Time       `json:"last_modified_at"`
	Archived       bool            `json:"archived,omitempty"`
}

// Clone returns a deep copy of the snapshot. Workers hand clones to readers
// so callers can never mutate the cached authoritative copy.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	if s.State != nil {
		out.State = make(json.RawMessage, len(s.State))
		copy(out.State, s.State)
	}
	return &out
}

// DecodeState unmarshals the snapshot state into v.
func (s *Snapshot) DecodeState(v any) error {
	return json.Unmarshal(s.State, v)
}

// EncodeState marshals v as the canonical state representation.
func EncodeState(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}
