package grain

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/xraph/grain/idempotency"
)

// keyLockStripes is the number of gateway lock stripes. Acquisitions of the
// same key serialize on one stripe; distinct keys rarely contend.
const keyLockStripes = 64

func (r *Runtime) keyLock(organizationID, key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(organizationID))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return &r.keyLocks[h.Sum32()%keyLockStripes]
}

// GenerateKey creates a fresh idempotency key for the named operation and
// persists its record. Callers stamp the returned token on the first attempt
// and resend it verbatim on retries. Repeated calls with identical arguments
// yield different keys.
func (r *Runtime) GenerateKey(ctx context.Context, organizationID, operation, relatedEntityID string, ttl time.Duration) (string, error) {
	if organizationID == "" || operation == "" {
		return "", ErrInvalidInput
	}
	if ttl <= 0 {
		ttl = r.defaultKeyTTL
	}

	key := idempotency.NewToken(operation)
	now := time.Now()

	rec := &idempotency.KeyRecord{
		Key:             key,
		OrganizationID:  organizationID,
		Operation:       operation,
		RelatedEntityID: relatedEntityID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}
	if err := r.store.PutIdempotencyKey(ctx, rec); err != nil {
		return "", err
	}
	return key, nil
}

// TryAcquire claims an idempotency key for execution. The first caller and
// any caller retrying after a failed attempt get the claim (true); a caller
// presenting a key that already completed successfully is refused (false),
// so it can serve the cached prior result instead of re-executing. Refusal
// is a branch, not an error.
//
// An unseen key is registered implicitly. An expired record behaves as if
// the key was never seen.
func (r *Runtime) TryAcquire(ctx context.Context, organizationID, key, operation, relatedEntityID string) (bool, error) {
	if organizationID == "" || key == "" {
		return false, ErrInvalidInput
	}

	mu := r.keyLock(organizationID, key)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now()

	rec, err := r.store.GetIdempotencyKey(ctx, organizationID, key)
	switch {
	case err == nil && !rec.Expired(now):
		if !rec.Acquirable() {
			r.plugins.EmitKeyConflict(ctx, organizationID, key, operation)
			return false, nil
		}
		// Retry of a failed attempt: the claim transfers, the expiry does
		// not reset.
		r.plugins.EmitKeyAcquired(ctx, organizationID, key, operation)
		return true, nil

	case err != nil && !errors.Is(err, ErrNotFound):
		return false, err
	}

	rec = &idempotency.KeyRecord{
		Key:             key,
		OrganizationID:  organizationID,
		Operation:       operation,
		RelatedEntityID: relatedEntityID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(r.defaultKeyTTL),
	}
	if err := r.store.PutIdempotencyKey(ctx, rec); err != nil {
		return false, err
	}

	r.plugins.EmitKeyAcquired(ctx, organizationID, key, operation)
	return true, nil
}

// MarkUsed records the outcome of an attempt. It is an idempotent upsert:
// the record is created when absent. A successful outcome makes the key
// final; a failed outcome leaves it retryable.
func (r *Runtime) MarkUsed(ctx context.Context, organizationID, key string, successful bool, resultHash string) error {
	if organizationID == "" || key == "" {
		return ErrInvalidInput
	}

	mu := r.keyLock(organizationID, key)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now()

	rec, err := r.store.GetIdempotencyKey(ctx, organizationID, key)
	switch {
	case errors.Is(err, ErrNotFound):
		rec = &idempotency.KeyRecord{
			Key:            key,
			OrganizationID: organizationID,
			CreatedAt:      now,
			ExpiresAt:      now.Add(r.defaultKeyTTL),
		}
		if op, ok := idempotency.TokenOperation(key); ok {
			rec.Operation = op
		}
	case err != nil:
		return err
	case rec.Expired(now):
		return ErrKeyExpired
	}

	rec.Used = true
	rec.UsedAt = &now
	rec.Successful = successful
	rec.ResultHash = resultHash

	return r.store.PutIdempotencyKey(ctx, rec)
}

// Check inspects a key's prior use without claiming it. An unseen or
// expired key reports Exists false.
func (r *Runtime) Check(ctx context.Context, organizationID, key string) (*idempotency.CheckResult, error) {
	rec, err := r.store.GetIdempotencyKey(ctx, organizationID, key)
	if errors.Is(err, ErrNotFound) {
		return &idempotency.CheckResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	if rec.Expired(time.Now()) {
		return &idempotency.CheckResult{}, nil
	}

	return &idempotency.CheckResult{
		Exists:             true,
		AlreadyUsed:        rec.Used,
		PreviousSuccess:    rec.Successful,
		PreviousResultHash: rec.ResultHash,
	}, nil
}

// CleanupExpiredKeys removes expired key records immediately instead of
// waiting for the background sweeper.
func (r *Runtime) CleanupExpiredKeys(ctx context.Context) (int64, error) {
	removed, err := r.store.PurgeIdempotencyKeys(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		r.plugins.EmitKeysPurged(ctx, removed)
	}
	return removed, nil
}

// ExecuteOnce runs fn exactly once per idempotency key. A duplicate of a
// completed attempt fails with ErrKeyConflict without invoking fn; a retry
// after a failed attempt runs fn again.
func (r *Runtime) ExecuteOnce(ctx context.Context, organizationID, key, operation, relatedEntityID string, fn func(ctx context.Context) (resultHash string, err error)) error {
	acquired, err := r.TryAcquire(ctx, organizationID, key, operation, relatedEntityID)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrKeyConflict
	}

	hash, fnErr := fn(ctx)
	if markErr := r.MarkUsed(ctx, organizationID, key, fnErr == nil, hash); markErr != nil {
		r.logger.Error("failed to record idempotency outcome",
			"key", key,
			"operation", operation,
			"error", markErr,
		)
	}
	return fnErr
}
