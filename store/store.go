package store

import (
	"context"
	"time"

	"github.com/xraph/grain/events"
	"github.com/xraph/grain/idempotency"
	"github.com/xraph/grain/types"
)

// Store is the unified storage interface for all runtime state.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Snapshot methods
	GetSnapshot(ctx context.Context, key string) (*types.Snapshot, error)
	PutSnapshot(ctx context.Context, snap *types.Snapshot) error

	// Idempotency key methods
	GetIdempotencyKey(ctx context.Context, organizationID, key string) (*idempotency.KeyRecord, error)
	PutIdempotencyKey(ctx context.Context, rec *idempotency.KeyRecord) error
	PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error)

	// Audit trail methods
	AppendEvents(ctx context.Context, stream events.Stream, evts []events.DomainEvent) error
	ListEvents(ctx context.Context, stream events.Stream, opts events.ListOpts) ([]events.DomainEvent, error)
	PurgeEvents(ctx context.Context, stream events.Stream, before time.Time) (int64, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
