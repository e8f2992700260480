package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/grain"
	"github.com/xraph/grain/events"
	"github.com/xraph/grain/idempotency"
	"github.com/xraph/grain/types"
)

type Store struct {
	mu sync.RWMutex

	// Snapshot storage
	snapshots map[string]*types.Snapshot

	// Idempotency key storage, keyed by orgID + "\x00" + key
	keys map[string]*idempotency.KeyRecord

	// Audit trail storage, append-only per stream
	streams map[string][]events.DomainEvent
}

func New() *Store {
	return &Store{
		snapshots: make(map[string]*types.Snapshot),
		keys:      make(map[string]*idempotency.KeyRecord),
		streams:   make(map[string][]events.DomainEvent),
	}
}

// Snapshot Store implementation
func (s *Store) GetSnapshot(_ context.Context, key string) (*types.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if snap, ok := s.snapshots[key]; ok {
		return snap.Clone(), nil
	}
	return nil, grain.ErrNotFound
}

func (s *Store) PutSnapshot(_ context.Context, snap *types.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snap.Key] = snap.Clone()
	return nil
}

// Idempotency Store implementation
func keyID(organizationID, key string) string {
	return organizationID + "\x00" + key
}

func (s *Store) GetIdempotencyKey(_ context.Context, organizationID, key string) (*idempotency.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.keys[keyID(organizationID, key)]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, grain.ErrNotFound
}

func (s *Store) PutIdempotencyKey(_ context.Context, rec *idempotency.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.keys[keyID(rec.OrganizationID, rec.Key)] = &cp
	return nil
}

func (s *Store) PurgeIdempotencyKeys(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, rec := range s.keys {
		if !rec.ExpiresAt.After(before) {
			delete(s.keys, id)
			count++
		}
	}
	return count, nil
}

// Audit trail implementation
func (s *Store) AppendEvents(_ context.Context, stream events.Stream, evts []events.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streams[stream.String()] = append(s.streams[stream.String()], evts...)
	return nil
}

func (s *Store) ListEvents(_ context.Context, stream events.Stream, opts events.ListOpts) ([]events.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]events.DomainEvent, 0)
	for _, e := range s.streams[stream.String()] {
		if opts.AggregateID != "" && e.AggregateID != opts.AggregateID {
			continue
		}
		if opts.Type != "" && e.Type != opts.Type {
			continue
		}
		if !opts.Start.IsZero() && e.OccurredAt.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && !e.OccurredAt.Before(opts.End) {
			continue
		}
		result = append(result, e)
	}

	// Appends already arrive in commit order per aggregate; a stable sort
	// keeps cross-aggregate listings in time order without reshuffling ties.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt.Before(result[j].OccurredAt)
	})

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) PurgeEvents(_ context.Context, stream events.Stream, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	kept := make([]events.DomainEvent, 0)
	for _, e := range s.streams[stream.String()] {
		if e.OccurredAt.Before(before) {
			count++
		} else {
			kept = append(kept, e)
		}
	}
	s.streams[stream.String()] = kept
	return count, nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}
