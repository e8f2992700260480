package grain_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	grain "github.com/xraph/grain"
)

func TestGenerateKey(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	key, err := rt.GenerateKey(ctx, "org1", "refund", "order_1", 0)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if !strings.HasPrefix(key, "idem_refund_") {
		t.Errorf("key = %q, want idem_refund_ prefix", key)
	}

	// The record is persisted immediately, before any acquire.
	res, err := rt.Check(ctx, "org1", key)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Exists {
		t.Error("generated key not persisted")
	}
	if res.AlreadyUsed {
		t.Error("fresh key reported as used")
	}

	// Identical arguments never reuse a token.
	key2, err := rt.GenerateKey(ctx, "org1", "refund", "order_1", 0)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if key2 == key {
		t.Error("GenerateKey returned a duplicate token")
	}
}

func TestGenerateKeyValidation(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	if _, err := rt.GenerateKey(ctx, "", "refund", "", 0); !errors.Is(err, grain.ErrInvalidInput) {
		t.Errorf("empty org: err = %v, want ErrInvalidInput", err)
	}
	if _, err := rt.GenerateKey(ctx, "org1", "", "", 0); !errors.Is(err, grain.ErrInvalidInput) {
		t.Errorf("empty operation: err = %v, want ErrInvalidInput", err)
	}
}

func TestTryAcquire(t *testing.T) {
	ctx := context.Background()

	t.Run("FirstCallerWins", func(t *testing.T) {
		rt := newTestRuntime(t)

		acquired, err := rt.TryAcquire(ctx, "org1", "idem_capture_a1", "capture", "order_1")
		if err != nil {
			t.Fatalf("TryAcquire: %v", err)
		}
		if !acquired {
			t.Fatal("first acquire refused")
		}
	})

	t.Run("DuplicateAfterSuccessRefused", func(t *testing.T) {
		rt := newTestRuntime(t)
		key := "idem_capture_a2"

		if _, err := rt.TryAcquire(ctx, "org1", key, "capture", ""); err != nil {
			t.Fatalf("TryAcquire: %v", err)
		}
		if err := rt.MarkUsed(ctx, "org1", key, true, "hash_1"); err != nil {
			t.Fatalf("MarkUsed: %v", err)
		}

		acquired, err := rt.TryAcquire(ctx, "org1", key, "capture", "")
		if err != nil {
			t.Fatalf("TryAcquire duplicate: %v", err)
		}
		if acquired {
			t.Fatal("duplicate of a successful attempt was granted")
		}

		// The refused caller can recover the prior result fingerprint.
		res, err := rt.Check(ctx, "org1", key)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if !res.PreviousSuccess || res.PreviousResultHash != "hash_1" {
			t.Errorf("Check = %+v, want prior success with hash_1", res)
		}
	})

	t.Run("RetryAfterFailureGranted", func(t *testing.T) {
		rt := newTestRuntime(t)
		key := "idem_capture_a3"

		if _, err := rt.TryAcquire(ctx, "org1", key, "capture", ""); err != nil {
			t.Fatalf("TryAcquire: %v", err)
		}
		if err := rt.MarkUsed(ctx, "org1", key, false, ""); err != nil {
			t.Fatalf("MarkUsed: %v", err)
		}

		acquired, err := rt.TryAcquire(ctx, "org1", key, "capture", "")
		if err != nil {
			t.Fatalf("TryAcquire retry: %v", err)
		}
		if !acquired {
			t.Fatal("retry of a failed attempt was refused")
		}
	})

	t.Run("OrganizationsAreIsolated", func(t *testing.T) {
		rt := newTestRuntime(t)
		key := "idem_capture_a4"

		if _, err := rt.TryAcquire(ctx, "org1", key, "capture", ""); err != nil {
			t.Fatalf("TryAcquire: %v", err)
		}
		if err := rt.MarkUsed(ctx, "org1", key, true, ""); err != nil {
			t.Fatalf("MarkUsed: %v", err)
		}

		// The same token under another organization is a different key.
		acquired, err := rt.TryAcquire(ctx, "org2", key, "capture", "")
		if err != nil {
			t.Fatalf("TryAcquire other org: %v", err)
		}
		if !acquired {
			t.Fatal("key use leaked across organizations")
		}
	})
}

func TestMarkUsedCreatesAbsentRecord(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()
	key := "idem_void_m1"

	// MarkUsed on a never-acquired key upserts the record.
	if err := rt.MarkUsed(ctx, "org1", key, true, "hash_v"); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}

	res, err := rt.Check(ctx, "org1", key)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Exists || !res.AlreadyUsed || !res.PreviousSuccess {
		t.Errorf("Check = %+v, want used successful record", res)
	}

	acquired, err := rt.TryAcquire(ctx, "org1", key, "void", "")
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if acquired {
		t.Fatal("key finalized by MarkUsed was granted again")
	}
}

func TestExpiredKeys(t *testing.T) {
	ctx := context.Background()

	t.Run("ExpiredBehavesAsUnseen", func(t *testing.T) {
		rt := newTestRuntime(t, grain.WithCleanupConfig(time.Hour, 10*time.Millisecond))
		key := "idem_capture_e1"

		if _, err := rt.TryAcquire(ctx, "org1", key, "capture", ""); err != nil {
			t.Fatalf("TryAcquire: %v", err)
		}
		if err := rt.MarkUsed(ctx, "org1", key, true, "h"); err != nil {
			t.Fatalf("MarkUsed: %v", err)
		}

		time.Sleep(20 * time.Millisecond)

		res, err := rt.Check(ctx, "org1", key)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if res.Exists {
			t.Error("expired key still visible to Check")
		}

		acquired, err := rt.TryAcquire(ctx, "org1", key, "capture", "")
		if err != nil {
			t.Fatalf("TryAcquire after expiry: %v", err)
		}
		if !acquired {
			t.Error("expired key not re-acquirable")
		}
	})

	t.Run("MarkUsedOnExpiredFails", func(t *testing.T) {
		rt := newTestRuntime(t, grain.WithCleanupConfig(time.Hour, 10*time.Millisecond))
		key := "idem_capture_e2"

		if _, err := rt.TryAcquire(ctx, "org1", key, "capture", ""); err != nil {
			t.Fatalf("TryAcquire: %v", err)
		}

		time.Sleep(20 * time.Millisecond)

		if err := rt.MarkUsed(ctx, "org1", key, true, ""); !errors.Is(err, grain.ErrKeyExpired) {
			t.Errorf("err = %v, want ErrKeyExpired", err)
		}
	})

	t.Run("CleanupReportsRemovedCount", func(t *testing.T) {
		rt := newTestRuntime(t, grain.WithCleanupConfig(time.Hour, 10*time.Millisecond))

		for _, key := range []string{"idem_capture_c1", "idem_capture_c2", "idem_capture_c3"} {
			if _, err := rt.TryAcquire(ctx, "org1", key, "capture", ""); err != nil {
				t.Fatalf("TryAcquire %s: %v", key, err)
			}
		}

		time.Sleep(20 * time.Millisecond)

		removed, err := rt.CleanupExpiredKeys(ctx)
		if err != nil {
			t.Fatalf("CleanupExpiredKeys: %v", err)
		}
		if removed != 3 {
			t.Errorf("removed = %d, want 3", removed)
		}
	})
}

func TestExecuteOnce(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()
	key := "idem_refund_x1"

	calls := 0
	run := func(fnErr error) error {
		return rt.ExecuteOnce(ctx, "org1", key, "refund", "order_9", func(_ context.Context) (string, error) {
			calls++
			return "hash_r", fnErr
		})
	}

	// Failed attempt leaves the key retryable.
	boom := errors.New("downstream timeout")
	if err := run(boom); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want downstream error", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	// Retry executes again and succeeds.
	if err := run(nil); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}

	// A duplicate of the completed attempt never invokes fn.
	if err := run(nil); !errors.Is(err, grain.ErrKeyConflict) {
		t.Fatalf("err = %v, want ErrKeyConflict", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (fn ran on duplicate)", calls)
	}
}
