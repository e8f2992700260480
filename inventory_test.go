package grain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	grain "github.com/xraph/grain"
	"github.com/xraph/grain/events"
	"github.com/xraph/grain/inventory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestInventoryReceiveAndConsume(t *testing.T) {
	rt := newTestRuntime(t)
	inv := rt.Inventory()
	ctx := context.Background()
	ref := grain.LedgerRef{OrganizationID: "org1", SiteID: "site1", ItemID: "flour"}

	if err := inv.Initialize(ctx, ref, grain.LedgerPolicy{ReorderPoint: dec("5")}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	r1, err := inv.ReceiveBatch(ctx, ref, grain.ReceiveInput{
		BatchNumber: "B1",
		Quantity:    dec("10"),
		UnitCost:    dec("2.00"),
		PerformedBy: "alice",
	})
	if err != nil {
		t.Fatalf("ReceiveBatch B1: %v", err)
	}
	if !r1.QuantityOnHand.Equal(dec("10")) {
		t.Errorf("qoh after B1 = %s, want 10", r1.QuantityOnHand)
	}

	r2, err := inv.ReceiveBatch(ctx, ref, grain.ReceiveInput{
		BatchNumber: "B2",
		Quantity:    dec("10"),
		UnitCost:    dec("4.00"),
		PerformedBy: "alice",
	})
	if err != nil {
		t.Fatalf("ReceiveBatch B2: %v", err)
	}
	if !r2.WeightedAverageCost.Equal(dec("3.00")) {
		t.Errorf("WAC = %s, want 3.00", r2.WeightedAverageCost)
	}

	// FIFO: 15 units deplete all of B1 (10 @ 2.00) then 5 of B2 (@ 4.00).
	d, err := inv.Consume(ctx, ref, dec("15"), "order", "ord_1", "bob")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if len(d.Allocations) != 2 {
		t.Fatalf("allocations = %d, want 2", len(d.Allocations))
	}
	if d.Allocations[0].BatchNumber != "B1" || !d.Allocations[0].Quantity.Equal(dec("10")) {
		t.Errorf("allocation 0 = %+v, want 10 from B1", d.Allocations[0])
	}
	if d.Allocations[1].BatchNumber != "B2" || !d.Allocations[1].Quantity.Equal(dec("5")) {
		t.Errorf("allocation 1 = %+v, want 5 from B2", d.Allocations[1])
	}
	if !d.TotalCost.Equal(dec("40.00")) {
		t.Errorf("total cost = %s, want 40.00", d.TotalCost)
	}
	if !d.QuantityOnHand.Equal(dec("5")) {
		t.Errorf("qoh = %s, want 5", d.QuantityOnHand)
	}

	// Below the reorder point of 5? No: exactly 5 is not below.
	level, err := inv.GetStockLevel(ctx, ref)
	if err != nil {
		t.Fatalf("GetStockLevel: %v", err)
	}
	if level != inventory.StockLow && level != inventory.StockNormal {
		t.Errorf("stock level = %s", level)
	}

	// Every operation left its event on the tenant stream, in commit order.
	hist, err := rt.History(ctx, events.Stream{Namespace: "inventory", OrganizationID: "org1"}, events.ListOpts{})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	wantTypes := []string{
		"inventory.initialized",
		"inventory.batch_received",
		"inventory.batch_received",
		"inventory.consumed",
	}
	if len(hist) != len(wantTypes) {
		t.Fatalf("history has %d events, want %d", len(hist), len(wantTypes))
	}
	for i, want := range wantTypes {
		if hist[i].Type != want {
			t.Errorf("history[%d].Type = %s, want %s", i, hist[i].Type, want)
		}
	}
}

func TestInventoryInitializeTwice(t *testing.T) {
	rt := newTestRuntime(t)
	inv := rt.Inventory()
	ctx := context.Background()
	ref := grain.LedgerRef{OrganizationID: "org1", SiteID: "site1", ItemID: "sugar"}

	if err := inv.Initialize(ctx, ref, grain.LedgerPolicy{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := inv.Initialize(ctx, ref, grain.LedgerPolicy{}); !errors.Is(err, grain.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestInventoryInsufficientStock(t *testing.T) {
	rt := newTestRuntime(t)
	inv := rt.Inventory()
	ctx := context.Background()
	ref := grain.LedgerRef{OrganizationID: "org1", SiteID: "site1", ItemID: "salt"}

	_, err := inv.Consume(ctx, ref, dec("5"), "order", "ord_1", "bob")
	if !errors.Is(err, grain.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	// The failed mutation must not have auto-created the ledger.
	if _, err := inv.GetState(ctx, ref); !errors.Is(err, grain.ErrNotFound) {
		t.Fatalf("GetState err = %v, want ErrNotFound", err)
	}
}

func TestInventoryNegativeStockPolicy(t *testing.T) {
	rt := newTestRuntime(t)
	inv := rt.Inventory()
	ctx := context.Background()
	ref := grain.LedgerRef{OrganizationID: "org1", SiteID: "site1", ItemID: "milk"}

	if err := inv.Initialize(ctx, ref, grain.LedgerPolicy{AllowNegativeStock: true}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	d, err := inv.Consume(ctx, ref, dec("5"), "order", "ord_2", "bob")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !d.QuantityOnHand.Equal(dec("-5")) {
		t.Errorf("qoh = %s, want -5", d.QuantityOnHand)
	}

	level, err := inv.GetStockLevel(ctx, ref)
	if err != nil {
		t.Fatalf("GetStockLevel: %v", err)
	}
	if level != inventory.StockOutOfStock {
		t.Errorf("stock level = %s, want out_of_stock", level)
	}
}

func TestInventoryUpdatePolicyRequiresLedger(t *testing.T) {
	rt := newTestRuntime(t)
	inv := rt.Inventory()
	ctx := context.Background()
	ref := grain.LedgerRef{OrganizationID: "org1", SiteID: "site1", ItemID: "ghost"}

	err := inv.UpdatePolicy(ctx, ref, grain.LedgerPolicy{ReorderPoint: dec("1")})
	if !errors.Is(err, grain.ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
}

func TestInventoryReverseConsumption(t *testing.T) {
	rt := newTestRuntime(t)
	inv := rt.Inventory()
	ctx := context.Background()
	ref := grain.LedgerRef{OrganizationID: "org1", SiteID: "site1", ItemID: "beans"}

	if _, err := inv.ReceiveBatch(ctx, ref, grain.ReceiveInput{Quantity: dec("10"), UnitCost: dec("1.50")}); err != nil {
		t.Fatalf("ReceiveBatch: %v", err)
	}

	d, err := inv.Consume(ctx, ref, dec("4"), "order", "ord_3", "bob")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	mov, err := inv.ReverseConsumption(ctx, ref, d.MovementID, "order voided", "carol")
	if err != nil {
		t.Fatalf("ReverseConsumption: %v", err)
	}
	if mov.Type != inventory.MovementReversal {
		t.Errorf("movement type = %s, want reversal", mov.Type)
	}
	if !mov.Quantity.Equal(dec("4")) {
		t.Errorf("restored quantity = %s, want 4", mov.Quantity)
	}

	st, err := inv.GetState(ctx, ref)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !st.QuantityOnHand.Equal(dec("10")) {
		t.Errorf("qoh = %s, want 10", st.QuantityOnHand)
	}

	// A reversal itself cannot be reversed.
	if _, err := inv.ReverseConsumption(ctx, ref, mov.ID, "again", "carol"); !errors.Is(err, grain.ErrNotReversible) {
		t.Fatalf("err = %v, want ErrNotReversible", err)
	}
}

func TestInventoryWriteOffExpiredBatches(t *testing.T) {
	rt := newTestRuntime(t)
	inv := rt.Inventory()
	ctx := context.Background()
	ref := grain.LedgerRef{OrganizationID: "org1", SiteID: "site1", ItemID: "cream"}

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(24 * time.Hour)

	if _, err := inv.ReceiveBatch(ctx, ref, grain.ReceiveInput{
		BatchNumber: "OLD", Quantity: dec("6"), UnitCost: dec("2"), ExpiryDate: &past,
	}); err != nil {
		t.Fatalf("ReceiveBatch OLD: %v", err)
	}
	if _, err := inv.ReceiveBatch(ctx, ref, grain.ReceiveInput{
		BatchNumber: "NEW", Quantity: dec("4"), UnitCost: dec("2"), ExpiryDate: &future,
	}); err != nil {
		t.Fatalf("ReceiveBatch NEW: %v", err)
	}

	offs, err := inv.WriteOffExpiredBatches(ctx, ref, "dave")
	if err != nil {
		t.Fatalf("WriteOffExpiredBatches: %v", err)
	}
	if len(offs) != 1 || offs[0].BatchNumber != "OLD" {
		t.Fatalf("write-offs = %+v, want only OLD", offs)
	}

	st, err := inv.GetState(ctx, ref)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !st.QuantityOnHand.Equal(dec("4")) {
		t.Errorf("qoh = %s, want 4", st.QuantityOnHand)
	}

	// Nothing left to write off; the call is a no-op, not an error.
	offs, err = inv.WriteOffExpiredBatches(ctx, ref, "dave")
	if err != nil {
		t.Fatalf("second WriteOffExpiredBatches: %v", err)
	}
	if len(offs) != 0 {
		t.Errorf("write-offs = %+v, want none", offs)
	}
}

func TestInventoryTransferBetweenSites(t *testing.T) {
	rt := newTestRuntime(t)
	inv := rt.Inventory()
	ctx := context.Background()
	src := grain.LedgerRef{OrganizationID: "org1", SiteID: "siteA", ItemID: "rice"}
	dst := grain.LedgerRef{OrganizationID: "org1", SiteID: "siteB", ItemID: "rice"}

	if _, err := inv.ReceiveBatch(ctx, src, grain.ReceiveInput{Quantity: dec("20"), UnitCost: dec("1.25")}); err != nil {
		t.Fatalf("ReceiveBatch: %v", err)
	}

	out, err := inv.TransferOut(ctx, src, grain.TransferInput{
		Quantity: dec("8"), SiteID: "siteB", TransferID: "tr_1", PerformedBy: "eve",
	})
	if err != nil {
		t.Fatalf("TransferOut: %v", err)
	}
	if !out.QuantityOnHand.Equal(dec("12")) {
		t.Errorf("source qoh = %s, want 12", out.QuantityOnHand)
	}

	in, err := inv.ReceiveTransfer(ctx, dst, grain.TransferInput{
		Quantity: dec("8"), UnitCost: dec("1.25"), SiteID: "siteA", TransferID: "tr_1", PerformedBy: "eve",
	})
	if err != nil {
		t.Fatalf("ReceiveTransfer: %v", err)
	}
	if !in.QuantityOnHand.Equal(dec("8")) {
		t.Errorf("destination qoh = %s, want 8", in.QuantityOnHand)
	}

	// Transfers ignore the negative-stock policy: over-transfer always fails.
	if err := inv.UpdatePolicy(ctx, src, grain.LedgerPolicy{AllowNegativeStock: true}); err != nil {
		t.Fatalf("UpdatePolicy: %v", err)
	}
	_, err = inv.TransferOut(ctx, src, grain.TransferInput{
		Quantity: dec("100"), SiteID: "siteB", TransferID: "tr_2", PerformedBy: "eve",
	})
	if !errors.Is(err, grain.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
}
