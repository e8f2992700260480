package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	grain "github.com/xraph/grain"
	"github.com/xraph/grain/events"
	"github.com/xraph/grain/idempotency"
	"github.com/xraph/grain/store/memory"
	"github.com/xraph/grain/types"
)

func TestSnapshotStore(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := s.GetSnapshot(ctx, "org:o1:counter:x")
		if !errors.Is(err, grain.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutThenGet", func(t *testing.T) {
		snap := &types.Snapshot{
			Key:            "org:o1:counter:a",
			Version:        3,
			State:          json.RawMessage(`{"n":3}`),
			LastModifiedAt: time.Now(),
		}
		if err := s.PutSnapshot(ctx, snap); err != nil {
			t.Fatalf("PutSnapshot: %v", err)
		}

		got, err := s.GetSnapshot(ctx, snap.Key)
		if err != nil {
			t.Fatalf("GetSnapshot: %v", err)
		}
		if got.Version != 3 || string(got.State) != `{"n":3}` {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("StoredCopyIsIsolated", func(t *testing.T) {
		snap := &types.Snapshot{Key: "org:o1:counter:b", Version: 1, State: json.RawMessage(`{"n":1}`)}
		if err := s.PutSnapshot(ctx, snap); err != nil {
			t.Fatalf("PutSnapshot: %v", err)
		}

		// Mutating the caller's value after Put must not affect the store.
		snap.Version = 42

		got, err := s.GetSnapshot(ctx, "org:o1:counter:b")
		if err != nil {
			t.Fatalf("GetSnapshot: %v", err)
		}
		if got.Version != 1 {
			t.Errorf("version = %d, want 1 (store shares caller memory)", got.Version)
		}

		// Mutating a returned value must not affect later reads.
		got.Version = 99
		again, err := s.GetSnapshot(ctx, "org:o1:counter:b")
		if err != nil {
			t.Fatalf("GetSnapshot: %v", err)
		}
		if again.Version != 1 {
			t.Errorf("version = %d, want 1 (reads share store memory)", again.Version)
		}
	})
}

func TestIdempotencyKeyStore(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now()

	put := func(org, key string, expiresAt time.Time) {
		t.Helper()
		err := s.PutIdempotencyKey(ctx, &idempotency.KeyRecord{
			Key:            key,
			OrganizationID: org,
			Operation:      "capture",
			CreatedAt:      now,
			ExpiresAt:      expiresAt,
		})
		if err != nil {
			t.Fatalf("PutIdempotencyKey: %v", err)
		}
	}

	put("org1", "k1", now.Add(time.Hour))
	put("org1", "k2", now.Add(-time.Hour))
	put("org2", "k1", now.Add(-time.Hour))

	t.Run("KeysAreScopedByOrganization", func(t *testing.T) {
		rec, err := s.GetIdempotencyKey(ctx, "org1", "k1")
		if err != nil {
			t.Fatalf("GetIdempotencyKey: %v", err)
		}
		if rec.OrganizationID != "org1" {
			t.Errorf("org = %s", rec.OrganizationID)
		}

		if _, err := s.GetIdempotencyKey(ctx, "org3", "k1"); !errors.Is(err, grain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("PurgeRemovesOnlyExpired", func(t *testing.T) {
		removed, err := s.PurgeIdempotencyKeys(ctx, now)
		if err != nil {
			t.Fatalf("PurgeIdempotencyKeys: %v", err)
		}
		if removed != 2 {
			t.Errorf("removed = %d, want 2", removed)
		}

		if _, err := s.GetIdempotencyKey(ctx, "org1", "k1"); err != nil {
			t.Errorf("live key purged: %v", err)
		}
		if _, err := s.GetIdempotencyKey(ctx, "org1", "k2"); !errors.Is(err, grain.ErrNotFound) {
			t.Errorf("expired key survived purge")
		}
	})
}

func TestEventStore(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	stream := events.Stream{Namespace: "inventory", OrganizationID: "org1"}
	base := time.Now()

	batch := make([]events.DomainEvent, 5)
	for i := range batch {
		evtType := "inventory.consumed"
		if i%2 == 0 {
			evtType = "inventory.batch_received"
		}
		batch[i] = events.New("org:org1:inventory:site1:flour", "org1", evtType, map[string]any{"i": i}, base.Add(time.Duration(i)*time.Second))
	}
	if err := s.AppendEvents(ctx, stream, batch); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	// A different tenant's stream stays empty.
	other, err := s.ListEvents(ctx, events.Stream{Namespace: "inventory", OrganizationID: "org2"}, events.ListOpts{})
	if err != nil {
		t.Fatalf("ListEvents other org: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("other stream has %d events", len(other))
	}

	t.Run("ListAllInOrder", func(t *testing.T) {
		got, err := s.ListEvents(ctx, stream, events.ListOpts{})
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(got) != 5 {
			t.Fatalf("got %d events, want 5", len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i].OccurredAt.Before(got[i-1].OccurredAt) {
				t.Fatalf("events out of order at %d", i)
			}
		}
	})

	t.Run("FilterByType", func(t *testing.T) {
		got, err := s.ListEvents(ctx, stream, events.ListOpts{Type: "inventory.consumed"})
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d events, want 2", len(got))
		}
	})

	t.Run("FilterByTimeWindow", func(t *testing.T) {
		got, err := s.ListEvents(ctx, stream, events.ListOpts{
			Start: base.Add(1 * time.Second),
			End:   base.Add(4 * time.Second),
		})
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		// Start is inclusive, End exclusive.
		if len(got) != 3 {
			t.Fatalf("got %d events, want 3", len(got))
		}
	})

	t.Run("LimitAndOffset", func(t *testing.T) {
		got, err := s.ListEvents(ctx, stream, events.ListOpts{Limit: 2, Offset: 1})
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d events, want 2", len(got))
		}
	})

	t.Run("PurgeBefore", func(t *testing.T) {
		removed, err := s.PurgeEvents(ctx, stream, base.Add(2*time.Second))
		if err != nil {
			t.Fatalf("PurgeEvents: %v", err)
		}
		if removed != 2 {
			t.Errorf("removed = %d, want 2", removed)
		}

		got, err := s.ListEvents(ctx, stream, events.ListOpts{})
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("got %d events after purge, want 3", len(got))
		}
	})
}
