package inventory_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/grain/inventory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func receive(t *testing.T, s *inventory.State, batch, qty, cost string) {
	t.Helper()
	if _, err := s.Receive(batch, dec(qty), dec(cost), nil, "", "tester", time.Now().UTC()); err != nil {
		t.Fatalf("Receive(%s): %v", batch, err)
	}
}

func TestFIFOAllocation(t *testing.T) {
	s := inventory.NewState("org_1", "site_1", "item_1")
	receive(t, s, "B1", "30", "4")
	receive(t, s, "B2", "30", "6")
	receive(t, s, "B3", "30", "9")

	res, err := s.Consume(dec("45"), "service", "ord_1", "tester", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}

	want := []struct {
		batch string
		qty   string
		cost  string
	}{
		{"B1", "30", "120"},
		{"B2", "15", "90"},
	}
	if len(res.Allocations) != len(want) {
		t.Fatalf("allocations: got %d, want %d", len(res.Allocations), len(want))
	}
	for i, w := range want {
		a := res.Allocations[i]
		if a.BatchNumber != w.batch || !a.Quantity.Equal(dec(w.qty)) || !a.Cost.Equal(dec(w.cost)) {
			t.Errorf("allocation %d: got (%s, %s, %s), want (%s, %s, %s)",
				i, a.BatchNumber, a.Quantity, a.Cost, w.batch, w.qty, w.cost)
		}
	}
	if !res.TotalCost.Equal(dec("210")) {
		t.Errorf("total cost: got %s, want 210", res.TotalCost)
	}
	if !s.QuantityOnHand.Equal(dec("45")) {
		t.Errorf("quantity on hand: got %s, want 45", s.QuantityOnHand)
	}
}

func TestWeightedAverageCostBlend(t *testing.T) {
	s := inventory.NewState("org_1", "site_1", "item_1")
	receive(t, s, "B1", "100", "5")
	receive(t, s, "B2", "100", "7")

	if !s.WeightedAverageCost.Equal(dec("6")) {
		t.Errorf("WAC: got %s, want 6", s.WeightedAverageCost)
	}
}

func TestWeightedAverageCostResetAfterDepletion(t *testing.T) {
	s := inventory.NewState("org_1", "site_1", "item_1")
	receive(t, s, "B1", "20", "5")
	if _, err := s.Consume(dec("20"), "service", "", "tester", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	if !s.QuantityOnHand.IsZero() {
		t.Fatalf("quantity on hand: got %s, want 0", s.QuantityOnHand)
	}

	// A receipt into empty stock must not be contaminated by exhausted batches.
	receive(t, s, "B2", "30", "8")
	if !s.WeightedAverageCost.Equal(dec("8")) {
		t.Errorf("WAC: got %s, want exactly 8", s.WeightedAverageCost)
	}
}

func TestNegativeStockCosting(t *testing.T) {
	s := inventory.NewState("org_1", "site_1", "item_1")
	s.AllowNegativeStock = true
	receive(t, s, "B1", "50", "10")

	res, err := s.Consume(dec("80"), "service", "ord_9", "tester", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	// 50 from the batch at $10, plus a 30-unit shortfall at the current WAC.
	if !res.TotalCost.Equal(dec("800")) {
		t.Errorf("total cost: got %s, want 800", res.TotalCost)
	}
	if !s.QuantityOnHand.Equal(dec("-30")) {
		t.Errorf("quantity on hand: got %s, want -30", s.QuantityOnHand)
	}
	if len(res.Allocations) != 1 || !res.Allocations[0].Quantity.Equal(dec("50")) {
		t.Errorf("shortfall must stay unattributed to batches: %+v", res.Allocations)
	}
}

func TestStrictRejectionLeavesStateUnchanged(t *testing.T) {
	s := inventory.NewState("org_1", "site_1", "item_1")
	receive(t, s, "B1", "5", "2")

	_, err := s.Consume(dec("15"), "service", "", "tester", time.Now().UTC())
	if !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if !s.QuantityOnHand.Equal(dec("5")) {
		t.Errorf("quantity on hand changed: got %s, want 5", s.QuantityOnHand)
	}
	if !s.Batches[0].RemainingQuantity.Equal(dec("5")) {
		t.Errorf("batch mutated on rejected consume: %s", s.Batches[0].RemainingQuantity)
	}
}

func TestTransferOutIgnoresNegativeStockFlag(t *testing.T) {
	s := inventory.NewState("org_1", "site_1", "item_1")
	s.AllowNegativeStock = true
	receive(t, s, "B1", "10", "3")

	if _, err := s.TransferOut(dec("25"), "site_2", "xfer_1", "tester", time.Now().UTC()); !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("transfers must always require sufficiency, got %v", err)
	}

	res, err := s.TransferOut(dec("10"), "site_2", "xfer_2", "tester", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if !res.TotalCost.Equal(dec("30")) {
		t.Errorf("transfer cost: got %s, want 30", res.TotalCost)
	}
}

func TestReceiveTransferTagsBatch(t *testing.T) {
	s := inventory.NewState("org_1", "site_2", "item_1")
	res, err := s.ReceiveTransfer(dec("10"), dec("3"), "site_1", "xfer_7", "tester", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if res.BatchNumber != "XFER-xfer_7" {
		t.Errorf("batch number: got %q", res.BatchNumber)
	}
	b := s.Batches[0]
	if b.SourceSiteID != "site_1" || b.TransferID != "xfer_7" {
		t.Errorf("transfer batch tags: %+v", b)
	}
	if s.RecentMovements[0].Type != inventory.MovementTransferIn {
		t.Errorf("movement type: got %s", s.RecentMovements[0].Type)
	}
}

func TestReversalRoundTrip(t *testing.T) {
	s := inventory.NewState("org_1", "site_1", "item_1")
	receive(t, s, "B1", "40", "2.50")
	before := s.QuantityOnHand

	res, err := s.Consume(dec("17.25"), "service", "", "tester", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Reverse(res.MovementID, "void", "tester", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	if !s.QuantityOnHand.Equal(before) {
		t.Errorf("quantity on hand: got %s, want %s", s.QuantityOnHand, before)
	}
}

func TestReverseRejectsNonDepletions(t *testing.T) {
	s := inventory.NewState("org_1", "site_1", "item_1")
	res, err := s.Receive("B1", dec("5"), dec("1"), nil, "", "tester", time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Reverse(res.MovementID, "oops", "tester", time.Now().UTC()); !errors.Is(err, inventory.ErrNotReversible) {
		t.Errorf("expected ErrNotReversible, got %v", err)
	}
}

func TestAdjustLeavesBatchesUntouched(t *testing.T) {
	s := inventory.NewState("org_1", "site_1", "item_1")
	receive(t, s, "B1", "50", "4")

	mov := s.Adjust(dec("42"), "physical count", "tester", time.Now().UTC())
	if !mov.Quantity.Equal(dec("-8")) {
		t.Errorf("adjustment delta: got %s, want -8", mov.Quantity)
	}
	if !s.QuantityOnHand.Equal(dec("42")) {
		t.Errorf("quantity on hand: got %s, want 42", s.QuantityOnHand)
	}
	if !s.Batches[0].RemainingQuantity.Equal(dec("50")) {
		t.Errorf("batches must be untouched by adjustment: %s", s.Batches[0].RemainingQuantity)
	}
}

func TestMovementLogBound(t *testing.T) {
	s := inventory.NewState("org_1", "site_1", "item_1")
	for i := 0; i < inventory.MaxRecentMovements+20; i++ {
		receive(t, s, fmt.Sprintf("B%d", i), "1", "1")
	}
	if len(s.RecentMovements) != inventory.MaxRecentMovements {
		t.Fatalf("movement log: got %d entries, want %d", len(s.RecentMovements), inventory.MaxRecentMovements)
	}
	// The oldest entries are evicted; the newest receipt is last.
	last := s.RecentMovements[len(s.RecentMovements)-1]
	if last.Type != inventory.MovementReceipt {
		t.Errorf("last movement type: got %s", last.Type)
	}
}

func TestStockLevelThresholds(t *testing.T) {
	tests := []struct {
		qty  string
		want inventory.StockLevel
	}{
		{"0", inventory.StockOutOfStock},
		{"-4", inventory.StockOutOfStock},
		{"5", inventory.StockLow},
		{"10", inventory.StockNormal},
		{"30", inventory.StockNormal},
		{"50", inventory.StockNormal},
		{"60", inventory.StockAbovePar},
	}

	for _, tt := range tests {
		t.Run(tt.qty, func(t *testing.T) {
			s := inventory.NewState("org_1", "site_1", "item_1")
			s.ReorderPoint = dec("10")
			s.ParLevel = dec("50")
			s.QuantityOnHand = dec(tt.qty)
			if got := s.StockLevel(); got != tt.want {
				t.Errorf("StockLevel(%s): got %s, want %s", tt.qty, got, tt.want)
			}
		})
	}
}

func TestWriteOffExpiredBatches(t *testing.T) {
	s := inventory.NewState("org_1", "site_1", "item_1")
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(24 * time.Hour)

	if _, err := s.Receive("OLD", dec("10"), dec("2"), &past, "", "tester", now.Add(-48*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Receive("FRESH", dec("20"), dec("3"), &future, "", "tester", now); err != nil {
		t.Fatal(err)
	}

	// Until written off, expired batches stay eligible for FIFO consumption.
	res, err := s.Consume(dec("5"), "service", "", "tester", now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Allocations[0].BatchNumber != "OLD" {
		t.Fatalf("expired batch must deplete first: %+v", res.Allocations)
	}

	written := s.WriteOffExpired("tester", now)
	if len(written) != 1 || written[0].BatchNumber != "OLD" || !written[0].Quantity.Equal(dec("5")) {
		t.Fatalf("write-offs: %+v", written)
	}
	if !s.QuantityOnHand.Equal(dec("20")) {
		t.Errorf("quantity on hand: got %s, want 20", s.QuantityOnHand)
	}
	if len(s.Batches) != 1 || s.Batches[0].BatchNumber != "FRESH" {
		t.Errorf("remaining batches: %+v", s.Batches)
	}
	if !s.WeightedAverageCost.Equal(dec("3")) {
		t.Errorf("WAC after write-off: got %s, want 3", s.WeightedAverageCost)
	}
}
