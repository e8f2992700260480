package postgres

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

	Key            string          `grove:"key,pk"`
	Version        int64           `grove:"version"`
	State          json.RawMessage `grove:"state,type:jsonb"`
	LastModifiedAt time.Time       `grove:"last_modified_at"`
	Archived       bool            `grove:"archived"`
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
		State:          m.State,
		LastModifiedAt: m.LastModifiedAt,
		Archived:       m.Archived,
	}
}

// ==================== Idempotency key models ====================

type idempotencyKeyModel struct {
	grove.BaseModel `grove:"table:grain_idempotency_keys"`

	OrganizationID  string     `grove:"organization_id,pk"`
	Key             string     `grove:"idem_key,pk"`
	Operation       string     `grove:"operation"`
	RelatedEntityID string     `grove:"related_entity_id"`
	CreatedAt       time.Time  `grove:"created_at"`
	ExpiresAt       time.Time  `grove:"expires_at"`
	Used            bool       `grove:"used"`
	UsedAt          *time.Time `grove:"used_at"`
	Successful      bool       `grove:"successful"`
	ResultHash      string     `grove:"result_hash"`
}

func toIdempotencyKeyModel(rec *idempotency.KeyRecord) *idempotencyKeyModel {
	return &idempotencyKeyModel{
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

	ID             string          `grove:"id,pk"`
	Namespace      string          `grove:"namespace"`
	OrganizationID string          `grove:"organization_id"`
	AggregateID    string          `grove:"aggregate_id"`
	Type           string          `grove:"type"`
	Payload        json.RawMessage `grove:"payload,type:jsonb"`
	OccurredAt     time.Time       `grove:"occurred_at"`
}

func toEventModel(stream events.Stream, e *events.DomainEvent) *eventModel {
	payload, _ := json.Marshal(e.Payload) //nolint:errcheck // best-effort

	return &eventModel{
		ID:             e.ID.String(),
		Namespace:      stream.Namespace,
		OrganizationID: stream.OrganizationID,
		AggregateID:    e.AggregateID,
		Type:           e.Type,
		Payload:        payload,
		OccurredAt:     e.OccurredAt,
	}
}

func fromEventModel(m *eventModel) (events.DomainEvent, error) {
	eventID, err := id.ParseEventID(m.ID)
	if err != nil {
		return events.DomainEvent{}, err
	}

	var payload map[string]any
	if len(m.Payload) > 0 && string(m.Payload) != "null" {
		_ = json.Unmarshal(m.Payload, &payload) //nolint:errcheck // best-effort
	}

	return events.DomainEvent{
		ID:             eventID,
		AggregateID:    m.AggregateID,
		OrganizationID: m.OrganizationID,
		Type:           m.Type,
		Payload:        payload,
		OccurredAt:     m.OccurredAt,
	}, nil
}
