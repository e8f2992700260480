package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	grain "github.com/xraph/grain"
	"github.com/xraph/grain/events"
	"github.com/xraph/grain/idempotency"
	grainstore "github.com/xraph/grain/store"
	"github.com/xraph/grain/types"
)

// compile-time interface check
var _ grainstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("grain/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("grain/sqlite: migration failed: %w", err)
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
	m := new(snapshotModel)
	err := s.sdb.NewSelect(m).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, grain.ErrNotFound
		}
		return nil, err
	}
	return fromSnapshotModel(m), nil
}

func (s *Store) PutSnapshot(ctx context.Context, snap *types.Snapshot) error {
	m := toSnapshotModel(snap)
	_, err := s.sdb.NewInsert(m).
		OnConflict("(key) DO UPDATE").
		Set("version = EXCLUDED.version").
		Set("state = EXCLUDED.state").
		Set("last_modified_at = EXCLUDED.last_modified_at").
		Set("archived = EXCLUDED.archived").
		Exec(ctx)
	return err
}

// ==================== Idempotency Store ====================

func (s *Store) GetIdempotencyKey(ctx context.Context, organizationID, key string) (*idempotency.KeyRecord, error) {
	m := new(idempotencyKeyModel)
	err := s.sdb.NewSelect(m).
		Where("organization_id = ?", organizationID).
		Where("idem_key = ?", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, grain.ErrNotFound
		}
		return nil, err
	}
	return fromIdempotencyKeyModel(m), nil
}

func (s *Store) PutIdempotencyKey(ctx context.Context, rec *idempotency.KeyRecord) error {
	m := toIdempotencyKeyModel(rec)
	_, err := s.sdb.NewInsert(m).
		OnConflict("(organization_id, idem_key) DO UPDATE").
		Set("operation = EXCLUDED.operation").
		Set("related_entity_id = EXCLUDED.related_entity_id").
		Set("created_at = EXCLUDED.created_at").
		Set("expires_at = EXCLUDED.expires_at").
		Set("used = EXCLUDED.used").
		Set("used_at = EXCLUDED.used_at").
		Set("successful = EXCLUDED.successful").
		Set("result_hash = EXCLUDED.result_hash").
		Exec(ctx)
	return err
}

func (s *Store) PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*idempotencyKeyModel)(nil)).
		Where("expires_at <= ?", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return rows, nil
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
	_, err := s.sdb.NewInsert(&models).Exec(ctx)
	return err
}

func (s *Store) ListEvents(ctx context.Context, stream events.Stream, opts events.ListOpts) ([]events.DomainEvent, error) {
	var models []eventModel
	q := s.sdb.NewSelect(&models).
		Where("namespace = ?", stream.Namespace).
		Where("organization_id = ?", stream.OrganizationID)

	if opts.AggregateID != "" {
		q = q.Where("aggregate_id = ?", opts.AggregateID)
	}
	if opts.Type != "" {
		q = q.Where("type = ?", opts.Type)
	}
	if !opts.Start.IsZero() {
		q = q.Where("occurred_at >= ?", opts.Start)
	}
	if !opts.End.IsZero() {
		q = q.Where("occurred_at < ?", opts.End)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	// Event IDs are K-sortable, breaking occurred_at ties in commit order.
	q = q.OrderExpr("occurred_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.sdb.NewDelete((*eventModel)(nil)).
		Where("namespace = ?", stream.Namespace).
		Where("organization_id = ?", stream.OrganizationID).
		Where("occurred_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// ==================== Helpers ====================

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
