package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	grain "github.com/xraph/grain"
	"github.com/xraph/grain/events"
	"github.com/xraph/grain/idempotency"
	grainstore "github.com/xraph/grain/store"
	"github.com/xraph/grain/types"
)

// Collection name constants.
const (
	colSnapshots = "grain_snapshots"
	colKeys      = "grain_idempotency_keys"
	colEvents    = "grain_events"
)

// compile-time interface check
var _ grainstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all grain collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("grain/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Snapshot Store ====================

func (s *Store) GetSnapshot(ctx context.Context, key string) (*types.Snapshot, error) {
	var m snapshotModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": key}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, grain.ErrNotFound
		}
		return nil, fmt.Errorf("grain/mongo: get snapshot: %w", err)
	}
	return fromSnapshotModel(&m), nil
}

func (s *Store) PutSnapshot(ctx context.Context, snap *types.Snapshot) error {
	m := toSnapshotModel(snap)

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Key}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":              m.Key,
			"version":          m.Version,
			"state":            m.State,
			"last_modified_at": m.LastModifiedAt,
			"archived":         m.Archived,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("grain/mongo: put snapshot: %w", err)
	}
	return nil
}

// ==================== Idempotency Store ====================

func (s *Store) GetIdempotencyKey(ctx context.Context, organizationID, key string) (*idempotency.KeyRecord, error) {
	var m idempotencyKeyModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": keyDocID(organizationID, key)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, grain.ErrNotFound
		}
		return nil, fmt.Errorf("grain/mongo: get idempotency key: %w", err)
	}
	return fromIdempotencyKeyModel(&m), nil
}

func (s *Store) PutIdempotencyKey(ctx context.Context, rec *idempotency.KeyRecord) error {
	m := toIdempotencyKeyModel(rec)

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.DocID}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":               m.DocID,
			"organization_id":   m.OrganizationID,
			"idem_key":          m.Key,
			"operation":         m.Operation,
			"related_entity_id": m.RelatedEntityID,
			"created_at":        m.CreatedAt,
			"expires_at":        m.ExpiresAt,
			"used":              m.Used,
			"used_at":           m.UsedAt,
			"successful":        m.Successful,
			"result_hash":       m.ResultHash,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("grain/mongo: put idempotency key: %w", err)
	}
	return nil
}

func (s *Store) PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*idempotencyKeyModel)(nil)).
		Filter(bson.M{"expires_at": bson.M{"$lte": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("grain/mongo: purge idempotency keys: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Audit Trail ====================

func (s *Store) AppendEvents(ctx context.Context, stream events.Stream, evts []events.DomainEvent) error {
	if len(evts) == 0 {
		return nil
	}
	models := make([]eventModel, len(evts))
	for i := range evts {
		models[i] = *toEventModel(stream, &evts[i])
	}
	_, err := s.mdb.NewInsert(&models).Exec(ctx)
	if err != nil {
		return fmt.Errorf("grain/mongo: append events: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, stream events.Stream, opts events.ListOpts) ([]events.DomainEvent, error) {
	var models []eventModel

	filter := bson.M{
		"namespace":       stream.Namespace,
		"organization_id": stream.OrganizationID,
	}
	if opts.AggregateID != "" {
		filter["aggregate_id"] = opts.AggregateID
	}
	if opts.Type != "" {
		filter["type"] = opts.Type
	}
	occurred := bson.M{}
	if !opts.Start.IsZero() {
		occurred["$gte"] = opts.Start
	}
	if !opts.End.IsZero() {
		occurred["$lt"] = opts.End
	}
	if len(occurred) > 0 {
		filter["occurred_at"] = occurred
	}

	// Event IDs are K-sortable, breaking occurred_at ties in commit order.
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("grain/mongo: list events: %w", err)
	}

	result := make([]events.DomainEvent, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) PurgeEvents(ctx context.Context, stream events.Stream, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*eventModel)(nil)).
		Filter(bson.M{
			"namespace":       stream.Namespace,
			"organization_id": stream.OrganizationID,
			"occurred_at":     bson.M{"$lt": before},
		}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("grain/mongo: purge events: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Helpers ====================

// isNoDocuments checks for the mongo driver's not-found sentinel.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all grain collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSnapshots: {
			{Keys: bson.D{{Key: "last_modified_at", Value: 1}}},
		},
		colKeys: {
			{
				Keys:    bson.D{{Key: "organization_id", Value: 1}, {Key: "idem_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		colEvents: {
			{Keys: bson.D{{Key: "namespace", Value: 1}, {Key: "organization_id", Value: 1}, {Key: "occurred_at", Value: 1}}},
			{Keys: bson.D{{Key: "aggregate_id", Value: 1}, {Key: "occurred_at", Value: 1}}},
		},
	}
}
