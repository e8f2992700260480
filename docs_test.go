package grain_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/grain"
	"github.com/xraph/grain/events"
	"github.com/xraph/grain/routing"
	"github.com/xraph/grain/store/memory"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// Initialize the runtime
		rt := grain.New(store,
			grain.WithLogger(slog.Default()),
			grain.WithMailboxSize(128),
			grain.WithIdleTimeout(5*time.Minute),
		)

		// Start the runtime
		ctx := context.Background()
		if err := rt.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer rt.Stop()

		// Address a ledger and seed it with stock
		inv := rt.Inventory()
		ref := grain.LedgerRef{OrganizationID: "org_1", SiteID: "site_9", ItemID: "flour"}

		if err := inv.Initialize(ctx, ref, grain.LedgerPolicy{
			ReorderPoint: decimal.NewFromInt(10),
			ParLevel:     decimal.NewFromInt(50),
		}); err != nil {
			t.Fatal(err)
		}

		receipt, err := inv.ReceiveBatch(ctx, ref, grain.ReceiveInput{
			Quantity:    decimal.NewFromInt(100),
			UnitCost:    decimal.RequireFromString("0.42"),
			PerformedBy: "chef",
		})
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("received batch %s, on hand %s\n", receipt.BatchNumber, receipt.QuantityOnHand)

		// Consume oldest stock first
		depletion, err := inv.Consume(ctx, ref, decimal.NewFromInt(45), "prep", "", "chef")
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("consumed at cost %s, on hand %s\n", depletion.TotalCost, depletion.QuantityOnHand)
	})

	// Test idempotency gateway example
	t.Run("IdempotencyExample", func(t *testing.T) {
		rt := grain.New(memory.New())
		ctx := context.Background()
		if err := rt.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer rt.Stop()

		// Stamp the first attempt with a fresh key
		key, err := rt.GenerateKey(ctx, "org_1", "capture", "order_42", 0)
		if err != nil {
			t.Fatal(err)
		}

		// Resend the key verbatim on every retry
		acquired, err := rt.TryAcquire(ctx, "org_1", key, "capture", "order_42")
		if err != nil {
			t.Fatal(err)
		}
		if acquired {
			// execute the side effect, then record its outcome
			if err := rt.MarkUsed(ctx, "org_1", key, true, "result_hash"); err != nil {
				t.Fatal(err)
			}
		}

		// A duplicate presents the same key and is refused
		acquired, err = rt.TryAcquire(ctx, "org_1", key, "capture", "order_42")
		if err != nil {
			t.Fatal(err)
		}
		if acquired {
			t.Fatal("duplicate acquired")
		}
	})

	// Test event subscription example
	t.Run("EventsExample", func(t *testing.T) {
		rt := grain.New(memory.New())
		ctx := context.Background()
		if err := rt.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer rt.Stop()

		stream := events.Stream{Namespace: routing.KindInventory, OrganizationID: "org_1"}

		sub := rt.Publisher().Subscribe(stream, func(evt events.DomainEvent) error {
			log.Printf("event %s: %s\n", evt.ID, evt.Type)
			return nil
		})
		defer sub.Unsubscribe()

		inv := rt.Inventory()
		ref := grain.LedgerRef{OrganizationID: "org_1", SiteID: "site_9", ItemID: "milk"}
		if _, err := inv.ReceiveBatch(ctx, ref, grain.ReceiveInput{
			Quantity: decimal.NewFromInt(12),
			UnitCost: decimal.RequireFromString("1.05"),
		}); err != nil {
			t.Fatal(err)
		}

		// The persisted trail is queryable independently of live delivery
		if _, err := rt.History(ctx, stream, events.ListOpts{Limit: 10}); err != nil {
			t.Fatal(err)
		}
	})
}
