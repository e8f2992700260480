// Package grain provides a multi-tenant transactional entity substrate for Go
// applications.
//
// Grain is designed as a library, not a service. Import it directly into your
// Go application and host your entities on its runtime. It provides:
//
//   - Single-writer entity execution: at most one in-flight command per
//     routing key, turn-based, with arrival-order fairness
//   - Deterministic key routing across tenants and entity kinds
//   - An idempotency gateway giving payment-style operations exactly-once
//     side effects with safe retry of failed attempts
//   - A FIFO batch / weighted-average-cost inventory ledger with exact
//     decimal arithmetic
//   - An ordered, at-least-once per-tenant event publisher feeding
//     projections and external sinks
//
// # Quick Start
//
// Create a runtime with your preferred store:
//
//	import (
//	    "github.com/xraph/grain"
//	    "github.com/xraph/grain/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create runtime
//	rt := grain.New(store)
//
//	// Start the runtime (begins background workers)
//	if err := rt.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Stop()
//
// # Core Concepts
//
// Routing keys address exactly one entity:
//
//	key := routing.ForInventory("org_1", "site_9", "flour")
//
// Turns are the unit of work. The runtime guarantees no two turns for the
// same key ever overlap, so a turn reads and writes its snapshot without
// locks:
//
//	snap, err := rt.Execute(ctx, key, myTurn)
//
// The inventory service wraps common ledger operations as turns:
//
//	inv := rt.Inventory()
//	ref := grain.LedgerRef{OrganizationID: "org_1", SiteID: "site_9", ItemID: "flour"}
//	result, err := inv.Consume(ctx, ref, decimal.NewFromInt(45), "prep", "", "chef")
//
// Side-effecting commands guard against duplicate delivery with the
// idempotency gateway:
//
//	key, _ := rt.GenerateKey(ctx, "org_1", "capture", orderID, 0)
//	acquired, err := rt.TryAcquire(ctx, "org_1", key, "capture", orderID)
//	if acquired {
//	    // execute side effect, then
//	    rt.MarkUsed(ctx, "org_1", key, true, resultHash)
//	}
//
// # Decimal Arithmetic
//
// All quantity and cost fields use exact decimal arithmetic, never binary
// floating point. FIFO cost allocations and weighted-average costs reproduce
// exact cent-level results.
//
// # TypeID
//
// Movements and events use TypeID for globally unique, type-safe
// identifiers:
//
//	mov_01h2xcejqtf2nbrexx3vqjhp41  // Movement ID
//	evt_01h2xcejqtf2nbrexx3vqjhp41  // Event ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package grain
