package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the grain store.
var Migrations = migrate.NewGroup("grain")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_grain_snapshots",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS grain_snapshots (
    key              TEXT PRIMARY KEY,
    version          BIGINT NOT NULL DEFAULT 0,
    state            JSONB NOT NULL DEFAULT '{}',
    last_modified_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    archived         BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_grain_snapshots_modified ON grain_snapshots (last_modified_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS grain_snapshots`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_grain_idempotency_keys",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS grain_idempotency_keys (
    organization_id   TEXT NOT NULL DEFAULT '',
    idem_key          TEXT NOT NULL DEFAULT '',
    operation         TEXT NOT NULL DEFAULT '',
    related_entity_id TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at        TIMESTAMPTZ NOT NULL,
    used              BOOLEAN NOT NULL DEFAULT FALSE,
    used_at           TIMESTAMPTZ,
    successful        BOOLEAN NOT NULL DEFAULT FALSE,
    result_hash       TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (organization_id, idem_key)
);

CREATE INDEX IF NOT EXISTS idx_grain_keys_expires ON grain_idempotency_keys (expires_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS grain_idempotency_keys`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_grain_events",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS grain_events (
    id              TEXT PRIMARY KEY,
    namespace       TEXT NOT NULL DEFAULT '',
    organization_id TEXT NOT NULL DEFAULT '',
    aggregate_id    TEXT NOT NULL DEFAULT '',
    type            TEXT NOT NULL DEFAULT '',
    payload         JSONB NOT NULL DEFAULT '{}',
    occurred_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_grain_events_stream ON grain_events (namespace, organization_id, occurred_at, id);
CREATE INDEX IF NOT EXISTS idx_grain_events_aggregate ON grain_events (namespace, organization_id, aggregate_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_grain_events_occurred ON grain_events (occurred_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS grain_events`)
				return err
			},
		},
	)
}
