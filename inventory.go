package grain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/grain/events"
	"github.com/xraph/grain/id"
	"github.com/xraph/grain/inventory"
	"github.com/xraph/grain/routing"
	"github.com/xraph/grain/types"
)

// Ledger is the inventory service. It runs every operation as a turn on the
// ledger's entity worker, so (site, item) pairs mutate single-writer while
// distinct pairs run in parallel.
type Ledger struct {
	rt *Runtime
}

// Inventory returns the inventory ledger service.
func (r *Runtime) Inventory() *Ledger {
	return &Ledger{rt: r}
}

// LedgerRef addresses one inventory ledger.
type LedgerRef struct {
	OrganizationID string
	SiteID         string
	ItemID         string
}

func (ref LedgerRef) key() string {
	return routing.ForInventory(ref.OrganizationID, ref.SiteID, ref.ItemID)
}

// LedgerPolicy configures replenishment thresholds and the negative-stock
// rule.
type LedgerPolicy struct {
	ReorderPoint       decimal.Decimal
	ParLevel           decimal.Decimal
	AllowNegativeStock bool
}

// ReceiveInput describes a stock receipt.
type ReceiveInput struct {
	// BatchNumber is optional; an empty value gets a generated one.
	BatchNumber string
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	ExpiryDate  *time.Time
	ReferenceID string
	PerformedBy string
}

// TransferInput describes one side of a two-site stock transfer.
type TransferInput struct {
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	SiteID      string
	TransferID  string
	PerformedBy string
}

// Initialize creates an empty ledger with the given policy. It fails with
// ErrAlreadyExists if the ledger was already created, explicitly or by a
// prior mutation.
func (l *Ledger) Initialize(ctx context.Context, ref LedgerRef, policy LedgerPolicy) error {
	_, err := l.rt.Execute(ctx, ref.key(), func(_ context.Context, snap *types.Snapshot) (json.RawMessage, []events.DomainEvent, error) {
		if snap != nil {
			return nil, nil, ErrAlreadyExists
		}

		st := inventory.NewState(ref.OrganizationID, ref.SiteID, ref.ItemID)
		st.ReorderPoint = policy.ReorderPoint
		st.ParLevel = policy.ParLevel
		st.AllowNegativeStock = policy.AllowNegativeStock

		state, err := types.EncodeState(st)
		if err != nil {
			return nil, nil, err
		}

		evt := events.New(ref.key(), ref.OrganizationID, "inventory.initialized", map[string]any{
			"site_id":              ref.SiteID,
			"item_id":              ref.ItemID,
			"reorder_point":        policy.ReorderPoint,
			"par_level":            policy.ParLevel,
			"allow_negative_stock": policy.AllowNegativeStock,
		}, time.Now())

		return state, []events.DomainEvent{evt}, nil
	})
	return err
}

// UpdatePolicy replaces the ledger's replenishment thresholds and
// negative-stock rule.
func (l *Ledger) UpdatePolicy(ctx context.Context, ref LedgerRef, policy LedgerPolicy) error {
	return l.mutate(ctx, ref, false, func(st *inventory.State, now time.Time) ([]events.DomainEvent, error) {
		st.ReorderPoint = policy.ReorderPoint
		st.ParLevel = policy.ParLevel
		st.AllowNegativeStock = policy.AllowNegativeStock

		evt := events.New(ref.key(), ref.OrganizationID, "inventory.policy_updated", map[string]any{
			"site_id":              ref.SiteID,
			"item_id":              ref.ItemID,
			"reorder_point":        policy.ReorderPoint,
			"par_level":            policy.ParLevel,
			"allow_negative_stock": policy.AllowNegativeStock,
		}, now)
		return []events.DomainEvent{evt}, nil
	})
}

// ReceiveBatch appends a batch at the FIFO tail and recomputes the weighted
// average cost.
func (l *Ledger) ReceiveBatch(ctx context.Context, ref LedgerRef, in ReceiveInput) (*inventory.ReceiptResult, error) {
	var res *inventory.ReceiptResult
	err := l.mutate(ctx, ref, true, func(st *inventory.State, now time.Time) ([]events.DomainEvent, error) {
		r, err := st.Receive(in.BatchNumber, in.Quantity, in.UnitCost, in.ExpiryDate, in.ReferenceID, in.PerformedBy, now)
		if err != nil {
			return nil, err
		}
		res = r

		evt := events.New(ref.key(), ref.OrganizationID, "inventory.batch_received", map[string]any{
			"site_id":               ref.SiteID,
			"item_id":               ref.ItemID,
			"movement_id":           r.MovementID.String(),
			"batch_number":          r.BatchNumber,
			"quantity":              in.Quantity,
			"unit_cost":             in.UnitCost,
			"quantity_on_hand":      r.QuantityOnHand,
			"weighted_average_cost": r.WeightedAverageCost,
		}, now)
		return []events.DomainEvent{evt}, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Consume depletes stock oldest batch first. With AllowNegativeStock, a
// shortfall is consumed unattributed at the current weighted average cost;
// otherwise the whole call fails with ErrInsufficientStock.
func (l *Ledger) Consume(ctx context.Context, ref LedgerRef, quantity decimal.Decimal, reason, orderID, performedBy string) (*inventory.DepletionResult, error) {
	var res *inventory.DepletionResult
	err := l.mutate(ctx, ref, true, func(st *inventory.State, now time.Time) ([]events.DomainEvent, error) {
		r, err := st.Consume(quantity, reason, orderID, performedBy, now)
		if err != nil {
			return nil, err
		}
		res = r
		evt := l.depletionEvent(ref, "inventory.consumed", quantity, reason, orderID, r, now)
		return []events.DomainEvent{evt}, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RecordWaste depletes stock like Consume, classified as waste.
func (l *Ledger) RecordWaste(ctx context.Context, ref LedgerRef, quantity decimal.Decimal, reason, referenceID, performedBy string) (*inventory.DepletionResult, error) {
	var res *inventory.DepletionResult
	err := l.mutate(ctx, ref, true, func(st *inventory.State, now time.Time) ([]events.DomainEvent, error) {
		r, err := st.Waste(quantity, reason, referenceID, performedBy, now)
		if err != nil {
			return nil, err
		}
		res = r
		evt := l.depletionEvent(ref, "inventory.waste_recorded", quantity, reason, referenceID, r, now)
		return []events.DomainEvent{evt}, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// TransferOut depletes stock bound for another site. Transfers always
// require sufficient stock, whatever the ledger's negative-stock rule.
func (l *Ledger) TransferOut(ctx context.Context, ref LedgerRef, in TransferInput) (*inventory.DepletionResult, error) {
	var res *inventory.DepletionResult
	err := l.mutate(ctx, ref, true, func(st *inventory.State, now time.Time) ([]events.DomainEvent, error) {
		r, err := st.TransferOut(in.Quantity, in.SiteID, in.TransferID, in.PerformedBy, now)
		if err != nil {
			return nil, err
		}
		res = r

		evt := events.New(ref.key(), ref.OrganizationID, "inventory.transferred_out", map[string]any{
			"site_id":             ref.SiteID,
			"item_id":             ref.ItemID,
			"movement_id":         r.MovementID.String(),
			"quantity":            in.Quantity,
			"destination_site_id": in.SiteID,
			"transfer_id":         in.TransferID,
			"total_cost":          r.TotalCost,
			"quantity_on_hand":    r.QuantityOnHand,
		}, now)
		return []events.DomainEvent{evt}, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReceiveTransfer receives stock sent from another site, tagging the created
// batch with the transfer and its source.
func (l *Ledger) ReceiveTransfer(ctx context.Context, ref LedgerRef, in TransferInput) (*inventory.ReceiptResult, error) {
	var res *inventory.ReceiptResult
	err := l.mutate(ctx, ref, true, func(st *inventory.State, now time.Time) ([]events.DomainEvent, error) {
		r, err := st.ReceiveTransfer(in.Quantity, in.UnitCost, in.SiteID, in.TransferID, in.PerformedBy, now)
		if err != nil {
			return nil, err
		}
		res = r

		evt := events.New(ref.key(), ref.OrganizationID, "inventory.transfer_received", map[string]any{
			"site_id":               ref.SiteID,
			"item_id":               ref.ItemID,
			"movement_id":           r.MovementID.String(),
			"batch_number":          r.BatchNumber,
			"quantity":              in.Quantity,
			"unit_cost":             in.UnitCost,
			"source_site_id":        in.SiteID,
			"transfer_id":           in.TransferID,
			"quantity_on_hand":      r.QuantityOnHand,
			"weighted_average_cost": r.WeightedAverageCost,
		}, now)
		return []events.DomainEvent{evt}, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// AdjustQuantity reconciles the ledger to a physical count. Batch
// composition is untouched.
func (l *Ledger) AdjustQuantity(ctx context.Context, ref LedgerRef, newQuantity decimal.Decimal, reason, performedBy string) (*inventory.Movement, error) {
	var mov inventory.Movement
	err := l.mutate(ctx, ref, true, func(st *inventory.State, now time.Time) ([]events.DomainEvent, error) {
		mov = st.Adjust(newQuantity, reason, performedBy, now)

		evt := events.New(ref.key(), ref.OrganizationID, "inventory.quantity_adjusted", map[string]any{
			"site_id":          ref.SiteID,
			"item_id":          ref.ItemID,
			"movement_id":      mov.ID.String(),
			"delta":            mov.Quantity,
			"quantity_on_hand": st.QuantityOnHand,
			"reason":           reason,
			"performed_by":     performedBy,
		}, now)
		return []events.DomainEvent{evt}, nil
	})
	if err != nil {
		return nil, err
	}
	return &mov, nil
}

// ReverseConsumption restores the quantity depleted by a prior consumption,
// waste, or transfer-out movement. The restore is ledger-level: batch
// composition is not reconstructed.
func (l *Ledger) ReverseConsumption(ctx context.Context, ref LedgerRef, movementID id.MovementID, reason, performedBy string) (*inventory.Movement, error) {
	var mov inventory.Movement
	err := l.mutate(ctx, ref, false, func(st *inventory.State, now time.Time) ([]events.DomainEvent, error) {
		m, err := st.Reverse(movementID, reason, performedBy, now)
		if err != nil {
			return nil, err
		}
		mov = m

		evt := events.New(ref.key(), ref.OrganizationID, "inventory.movement_reversed", map[string]any{
			"site_id":              ref.SiteID,
			"item_id":              ref.ItemID,
			"movement_id":          mov.ID.String(),
			"reversed_movement_id": movementID.String(),
			"quantity":             mov.Quantity,
			"quantity_on_hand":     st.QuantityOnHand,
			"reason":               reason,
			"performed_by":         performedBy,
		}, now)
		return []events.DomainEvent{evt}, nil
	})
	if err != nil {
		return nil, err
	}
	return &mov, nil
}

// WriteOffExpiredBatches removes every batch past its expiry date, recording
// one write-off movement per batch. Until this call, expired batches remain
// fully eligible for FIFO consumption.
func (l *Ledger) WriteOffExpiredBatches(ctx context.Context, ref LedgerRef, performedBy string) ([]inventory.WriteOff, error) {
	var offs []inventory.WriteOff
	err := l.mutate(ctx, ref, false, func(st *inventory.State, now time.Time) ([]events.DomainEvent, error) {
		offs = st.WriteOffExpired(performedBy, now)
		if len(offs) == 0 {
			return nil, nil
		}

		evts := make([]events.DomainEvent, 0, len(offs))
		for _, wo := range offs {
			evts = append(evts, events.New(ref.key(), ref.OrganizationID, "inventory.batch_written_off", map[string]any{
				"site_id":               ref.SiteID,
				"item_id":               ref.ItemID,
				"batch_number":          wo.BatchNumber,
				"quantity":              wo.Quantity,
				"unit_cost":             wo.UnitCost,
				"expired_at":            wo.ExpiredAt,
				"quantity_on_hand":      st.QuantityOnHand,
				"weighted_average_cost": st.WeightedAverageCost,
				"performed_by":          performedBy,
			}, now))
		}
		return evts, nil
	})
	if err != nil {
		return nil, err
	}
	return offs, nil
}

// GetState returns the current ledger state. A never-created ledger reports
// ErrNotFound.
func (l *Ledger) GetState(ctx context.Context, ref LedgerRef) (*inventory.State, error) {
	snap, err := l.rt.Read(ctx, ref.key())
	if err != nil {
		return nil, err
	}
	var st inventory.State
	if err := snap.DecodeState(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

// GetStockLevel returns the derived replenishment status.
func (l *Ledger) GetStockLevel(ctx context.Context, ref LedgerRef) (inventory.StockLevel, error) {
	st, err := l.GetState(ctx, ref)
	if err != nil {
		return "", err
	}
	return st.StockLevel(), nil
}

// mutate runs fn against the decoded ledger state as one turn. With
// autoCreate, a missing ledger starts empty with default policy; otherwise
// the call fails with ErrNotInitialized. Replenishment hooks fire after the
// commit.
func (l *Ledger) mutate(ctx context.Context, ref LedgerRef, autoCreate bool, fn func(st *inventory.State, now time.Time) ([]events.DomainEvent, error)) error {
	var final *inventory.State

	_, err := l.rt.Execute(ctx, ref.key(), func(_ context.Context, snap *types.Snapshot) (json.RawMessage, []events.DomainEvent, error) {
		var st inventory.State
		switch {
		case snap != nil:
			if err := snap.DecodeState(&st); err != nil {
				return nil, nil, err
			}
		case autoCreate:
			st = *inventory.NewState(ref.OrganizationID, ref.SiteID, ref.ItemID)
		default:
			return nil, nil, ErrNotInitialized
		}

		evts, err := fn(&st, time.Now())
		if err != nil {
			return nil, nil, err
		}

		state, err := types.EncodeState(&st)
		if err != nil {
			return nil, nil, err
		}
		final = &st
		return state, evts, nil
	})
	if err != nil {
		return err
	}

	if final != nil {
		l.emitStockHooks(ctx, ref, final)
	}
	return nil
}

func (l *Ledger) emitStockHooks(ctx context.Context, ref LedgerRef, st *inventory.State) {
	if st.QuantityOnHand.Sign() < 0 {
		l.rt.plugins.EmitStockNegative(ctx, ref.key(), st.QuantityOnHand)
	}
	if st.ReorderPoint.Sign() > 0 && st.QuantityOnHand.LessThan(st.ReorderPoint) {
		l.rt.plugins.EmitStockBelowReorder(ctx, ref.key(), st.QuantityOnHand, st.ReorderPoint)
	}
}

func (l *Ledger) depletionEvent(ref LedgerRef, eventType string, quantity decimal.Decimal, reason, referenceID string, r *inventory.DepletionResult, now time.Time) events.DomainEvent {
	allocations := make([]map[string]any, 0, len(r.Allocations))
	for _, a := range r.Allocations {
		allocations = append(allocations, map[string]any{
			"batch_number": a.BatchNumber,
			"quantity":     a.Quantity,
			"unit_cost":    a.UnitCost,
			"cost":         a.Cost,
		})
	}

	return events.New(ref.key(), ref.OrganizationID, eventType, map[string]any{
		"site_id":          ref.SiteID,
		"item_id":          ref.ItemID,
		"movement_id":      r.MovementID.String(),
		"quantity":         quantity,
		"reason":           reason,
		"reference_id":     referenceID,
		"allocations":      allocations,
		"total_cost":       r.TotalCost,
		"quantity_on_hand": r.QuantityOnHand,
	}, now)
}
