package mongo

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/grain/events"
	"github.com/xraph/grain/id"
	"github.com/xraph/grain/idempotency"
	"github.com/xraph/grain/types"
)

// ==================== Snapshot models ====================

type snapshotModel struct {
	grove.BaseModel `grove:"table:grain_snapshots"`

	Key            string    `grove:"id,pk"          bson:"_id"`
	Version        int64     `grove:"version"          bson:"version"`
	State          []byte    `grove:"state"            bson:"state"`
	LastModifiedAt time.Time `grove:"last_modified_at" bson:"last_modified_at"`
	Archived       bool      `grove:"archived"         bson:"archived"`
}

func toSnapshotModel(snap *types.Snapshot) *snapshotModel {
	return &snapshotModel{
		Key:            snap.Key,
		Version:        snap.Version,
		State:          snap.State,
		LastModifiedAt: snap.LastModifiedAt,
		Archived:       snap.Archived,
	}
}

func fromSnapshotModel(m *snapshotModel) *types.Snapshot {
	return &types.Snapshot{
		Key:            m.Key,
		Version:        m.Version,
		State:          json.RawMessage(m.State),
		LastModifiedAt: m.LastModifiedAt,
		Archived:       m.Archived,
	}
}

// ==================== Idempotency key models ====================

// Mongo documents have a single _id, so the composite (organization_id,
// idem_key) identity is stored as "org\x00key". The components are kept as
// separate fields for filtering and index coverage.
type idempotencyKeyModel struct {
	grove.BaseModel `grove:"table:grain_idempotency_keys"`

	DocID           string     `grove:"id,pk"            bson:"_id"`
	OrganizationID  string     `grove:"organization_id"   bson:"organization_id"`
	Key             string     `grove:"idem_key"          bson:"idem_key"`
	Operation       string     `grove:"operation"         bson:"operation"`
	RelatedEntityID string     `grove:"related_entity_id" bson:"related_entity_id"`
	CreatedAt       time.Time  `grove:"created_at"        bson:"created_at"`
	ExpiresAt       time.Time  `grove:"expires_at"        bson:"expires_at"`
	Used            bool       `grove:"used"              bson:"used"`
	UsedAt          *time.Time `grove:"used_at"           bson:"used_at,omitempty"`
	Successful      bool       `grove:"successful"        bson:"successful"`
	ResultHash      string     `grove:"result_hash"       bson:"result_hash"`
}

func keyDocID(organizationID, key string) string {
	return organizationID + "\x00" + key
}

func toIdempotencyKeyModel(rec *idempotency.KeyRecord) *idempotencyKeyModel {
	return &idempotencyKeyModel{
		DocID:           keyDocID(rec.OrganizationID, rec.Key),
		OrganizationID:  rec.OrganizationID,
		Key:             rec.Key,
		Operation:       rec.Operation,
		RelatedEntityID: rec.RelatedEntityID,
		CreatedAt:       rec.CreatedAt,
		ExpiresAt:       rec.ExpiresAt,
		Used:            rec.Used,
		UsedAt:          rec.UsedAt,
		Successful:      rec.Successful,
		ResultHash:      rec.ResultHash,
	}
}

func fromIdempotencyKeyModel(m *idempotencyKeyModel) *idempotency.KeyRecord {
	return &idempotency.KeyRecord{
		Key:             m.Key,
		OrganizationID:  m.OrganizationID,
		Operation:       m.Operation,
		RelatedEntityID: m.RelatedEntityID,
		CreatedAt:       m.CreatedAt,
		ExpiresAt:       m.ExpiresAt,
		Used:            m.Used,
		UsedAt:          m.UsedAt,
		Successful:      m.Successful,
		ResultHash:      m.ResultHash,
	}
}

// ==================== Event models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:grain_events"`

	ID             string         `grove:"id,pk"          bson:"_id"`
	Namespace      string         `grove:"namespace"       bson:"namespace"`
	OrganizationID string         `grove:"organization_id" bson:"organization_id"`
	AggregateID    string         `grove:"aggregate_id"    bson:"aggregate_id"`
	Type           string         `grove:"type"            bson:"type"`
	Payload        map[string]any `grove:"payload"         bson:"payload,omitempty"`
	OccurredAt     time.Time      `grove:"occurred_at"     bson:"occurred_at"`
}

func toEventModel(stream events.Stream, e *events.DomainEvent) *eventModel {
	return &eventModel{
		ID:             e.ID.String(),
		Namespace:      stream.Namespace,
		OrganizationID: stream.OrganizationID,
		AggregateID:    e.AggregateID,
		Type:           e.Type,
		Payload:        e.Payload,
		OccurredAt:     e.OccurredAt,
	}
}

func fromEventModel(m *eventModel) (events.DomainEvent, error) {
	eventID, err := id.ParseEventID(m.ID)
	if err != nil {
		return events.DomainEvent{}, err
	}

	return events.DomainEvent{
		ID:             eventID,
		AggregateID:    m.AggregateID,
		OrganizationID: m.OrganizationID,
		Type:           m.Type,
		Payload:        m.Payload,
		OccurredAt:     m.OccurredAt,
	}, nil
}
