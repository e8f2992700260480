// Package inventory defines the FIFO/weighted-average-cost ledger state and
// its pure transition logic.
//
// All quantity and cost fields use exact decimal arithmetic. FIFO cost
// allocations and weighted-average costs reproduce exact cent-level results;
// binary floating point never appears in the ledger.
package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/grain/id"
)

// MaxRecentMovements bounds the in-state movement log. The 101st insertion
// evicts the oldest entry.
const MaxRecentMovements = 100

// TransferBatchPrefix tags batches created by inbound transfers.
const TransferBatchPrefix = "XFER-"

// Sentinel errors for ledger transitions. The root package re-exports these
// under the grain namespace.
var (
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be positive")
	ErrInvalidUnitCost   = errors.New("inventory: unit cost must not be negative")
	ErrMovementNotFound  = errors.New("inventory: movement not found")
	ErrNotReversible     = errors.New("inventory: movement is not reversible")
)

// MovementType classifies a ledger movement.
type MovementType string

const (
	MovementReceipt        MovementType = "receipt"
	MovementConsumption    MovementType = "consumption"
	MovementAdjustment     MovementType = "adjustment"
	MovementWaste          MovementType = "waste"
	MovementTransferOut    MovementType = "transfer_out"
	MovementTransferIn     MovementType = "transfer_in"
	MovementReversal       MovementType = "reversal"
	MovementExpiryWriteOff MovementType = "expiry_write_off"
)

// StockLevel is the derived replenishment status of a ledger.
type StockLevel string

const (
	StockOutOfStock StockLevel = "out_of_stock"
	StockLow        StockLevel = "low"
	StockNormal     StockLevel = "normal"
	StockAbovePar   StockLevel = "above_par"
)

// Batch is one received lot of stock. Batches are depleted strictly in
// ReceivedSeq order; expiry status is irrelevant to ordering until the batch
// is explicitly written off.
type Batch struct {
	BatchNumber       string          `json:"batch_number"`
	ReceivedSeq       int64           `json:"received_seq"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	ExpiryDate        *time.Time      `json:"expiry_date,omitempty"`
	ReceivedAt        time.Time       `json:"received_at"`
	SourceSiteID      string          `json:"source_site_id,omitempty"`
	TransferID        string          `json:"transfer_id,omitempty"`
}

// Expired reports whether the batch is past its expiry date at the given time.
func (b *Batch) Expired(now time.Time) bool {
	return b.ExpiryDate != nil && !b.ExpiryDate.After(now)
}

// Movement is one ledger mutation. Quantity is signed: receipts are
// positive, depletions negative.
type Movement struct {
	ID          id.MovementID   `json:"id"`
	Type        MovementType    `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	PerformedBy string          `json:"performed_by,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// State is the persisted ledger state of one (site, item) pair.
//
// Invariant: WeightedAverageCost is recomputed only from batches with
// RemainingQuantity > 0; when none remain it retains its last value. The sum
// of batch quantities need not equal QuantityOnHand once stock has gone
// negative or a physical count has been applied.
type State struct {
	OrganizationID      string          `json:"organization_id"`
	SiteID              string          `json:"site_id,omitempty"`
	ItemID              string          `json:"item_id,omitempty"`
	QuantityOnHand      decimal.Decimal `json:"quantity_on_hand"`
	WeightedAverageCost decimal.Decimal `json:"weighted_average_cost"`
	Batches             []Batch         `json:"batches,omitempty"`
	NextReceivedSeq     int64           `json:"next_received_seq"`
	ReorderPoint        decimal.Decimal `json:"reorder_point"`
	ParLevel            decimal.Decimal `json:"par_level"`
	AllowNegativeStock  bool            `json:"allow_negative_stock"`
	RecentMovements     []Movement      `json:"recent_movements,omitempty"`
}

// NewState returns an empty ledger with the given replenishment policy.
func NewState(organizationID, siteID, itemID string) *State {
	return &State{
		OrganizationID:  organizationID,
		SiteID:          siteID,
		ItemID:          itemID,
		NextReceivedSeq: 1,
	}
}

// Allocation is one batch's share of a depletion.
type Allocation struct {
	BatchNumber string          `json:"batch_number"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Cost        decimal.Decimal `json:"cost"`
}

// DepletionResult is the outcome of a consume/waste/transfer-out transition.
type DepletionResult struct {
	MovementID id.MovementID `json:"movement_id"`
	// Allocations is the per-batch breakdown in depletion order. A shortfall
	// consumed under negative-stock policy is unattributed to any batch and
	// appears only in TotalCost.
	Allocations    []Allocation    `json:"allocations"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	QuantityOnHand decimal.Decimal `json:"quantity_on_hand"`
}

// ReceiptResult is the outcome of a receive transition.
type ReceiptResult struct {
	MovementID          id.MovementID   `json:"movement_id"`
	BatchNumber         string          `json:"batch_number"`
	QuantityOnHand      decimal.Decimal `json:"quantity_on_hand"`
	WeightedAverageCost decimal.Decimal `json:"weighted_average_cost"`
}

// WriteOff is one expired batch removed by WriteOffExpired.
type WriteOff struct {
	BatchNumber string          `json:"batch_number"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	ExpiredAt   time.Time       `json:"expired_at"`
}

// StockLevel derives the replenishment status from the current quantity and
// the configured thresholds.
func (s *State) StockLevel() StockLevel {
	switch {
	case s.QuantityOnHand.Sign() <= 0:
		return StockOutOfStock
	case s.QuantityOnHand.LessThan(s.ReorderPoint):
		return StockLow
	case s.QuantityOnHand.LessThanOrEqual(s.ParLevel):
		return StockNormal
	default:
		return StockAbovePar
	}
}

// FindMovement returns the movement with the given ID from the recent log.
func (s *State) FindMovement(movementID id.MovementID) (*Movement, bool) {
	for i := range s.RecentMovements {
		if s.RecentMovements[i].ID.String() == movementID.String() {
			return &s.RecentMovements[i], true
		}
	}
	return nil, false
}

// recordMovement appends to the bounded movement log, evicting the oldest
// entry beyond MaxRecentMovements.
func (s *State) recordMovement(m Movement) {
	s.RecentMovements = append(s.RecentMovements, m)
	if n := len(s.RecentMovements); n > MaxRecentMovements {
		s.RecentMovements = s.RecentMovements[n-MaxRecentMovements:]
	}
}

// recomputeWAC recalculates the weighted average cost over batches that
// still hold stock. With no such batches the previous value is retained, so
// a later shortfall is still costed and a fresh receipt into empty stock
// resets the WAC to exactly that batch's cost.
func (s *State) recomputeWAC() {
	totalQty := decimal.Zero
	totalCost := decimal.Zero
	for i := range s.Batches {
		b := &s.Batches[i]
		if b.RemainingQuantity.Sign() > 0 {
			totalQty = totalQty.Add(b.RemainingQuantity)
			totalCost = totalCost.Add(b.RemainingQuantity.Mul(b.UnitCost))
		}
	}
	if totalQty.Sign() > 0 {
		s.WeightedAverageCost = totalCost.Div(totalQty)
	}
}

// batchStock returns the total quantity attributable to batches.
func (s *State) batchStock() decimal.Decimal {
	total := decimal.Zero
	for i := range s.Batches {
		if s.Batches[i].RemainingQuantity.Sign() > 0 {
			total = total.Add(s.Batches[i].RemainingQuantity)
		}
	}
	return total
}

// Receive appends a batch at the FIFO tail and recomputes the WAC.
func (s *State) Receive(batchNumber string, quantity, unitCost decimal.Decimal, expiryDate *time.Time, referenceID string, performedBy string, now time.Time) (*ReceiptResult, error) {
	if quantity.Sign() <= 0 {
		return nil, ErrInvalidQuantity
	}
	if unitCost.Sign() < 0 {
		return nil, ErrInvalidUnitCost
	}
	if batchNumber == "" {
		batchNumber = id.NewBatchNumber()
	}

	s.Batches = append(s.Batches, Batch{
		BatchNumber:       batchNumber,
		ReceivedSeq:       s.NextReceivedSeq,
		RemainingQuantity: quantity,
		UnitCost:          unitCost,
		ExpiryDate:        expiryDate,
		ReceivedAt:        now,
	})
	s.NextReceivedSeq++
	s.QuantityOnHand = s.QuantityOnHand.Add(quantity)
	s.recomputeWAC()

	mov := Movement{
		ID:          id.NewMovementID(),
		Type:        MovementReceipt,
		Quantity:    quantity,
		ReferenceID: referenceID,
		PerformedBy: performedBy,
		OccurredAt:  now,
	}
	s.recordMovement(mov)

	return &ReceiptResult{
		MovementID:          mov.ID,
		BatchNumber:         batchNumber,
		QuantityOnHand:      s.QuantityOnHand,
		WeightedAverageCost: s.WeightedAverageCost,
	}, nil
}

// ReceiveTransfer is Receive for stock arriving from a sibling site. The
// created batch carries the transfer prefix and the source site.
func (s *State) ReceiveTransfer(quantity, unitCost decimal.Decimal, sourceSiteID, transferID, performedBy string, now time.Time) (*ReceiptResult, error) {
	res, err := s.Receive(TransferBatchPrefix+transferID, quantity, unitCost, nil, transferID, performedBy, now)
	if err != nil {
		return nil, err
	}
	b := &s.Batches[len(s.Batches)-1]
	b.SourceSiteID = sourceSiteID
	b.TransferID = transferID

	m := &s.RecentMovements[len(s.RecentMovements)-1]
	m.Type = MovementTransferIn
	return res, nil
}

// deplete removes quantity from batches oldest-ReceivedSeq-first. When batch
// stock is insufficient: with allowShortfall, the shortfall is consumed
// unattributed to any batch and costed at the WAC in effect at the start of
// the call; otherwise the whole transition fails and the state is unchanged.
func (s *State) deplete(movType MovementType, quantity decimal.Decimal, reason, referenceID, performedBy string, allowShortfall bool, now time.Time) (*DepletionResult, error) {
	if quantity.Sign() <= 0 {
		return nil, ErrInvalidQuantity
	}
	if !allowShortfall && quantity.GreaterThan(s.batchStock()) {
		return nil, ErrInsufficientStock
	}

	wacAtCall := s.WeightedAverageCost
	remaining := quantity
	totalCost := decimal.Zero
	var allocations []Allocation

	for i := range s.Batches {
		if remaining.Sign() <= 0 {
			break
		}
		b := &s.Batches[i]
		if b.RemainingQuantity.Sign() <= 0 {
			continue
		}
		take := decimal.Min(b.RemainingQuantity, remaining)
		cost := take.Mul(b.UnitCost)
		allocations = append(allocations, Allocation{
			BatchNumber: b.BatchNumber,
			Quantity:    take,
			UnitCost:    b.UnitCost,
			Cost:        cost,
		})
		b.RemainingQuantity = b.RemainingQuantity.Sub(take)
		totalCost = totalCost.Add(cost)
		remaining = remaining.Sub(take)
	}

	// Shortfall beyond batch stock, costed at the prevailing WAC.
	if remaining.Sign() > 0 {
		totalCost = totalCost.Add(remaining.Mul(wacAtCall))
	}

	s.QuantityOnHand = s.QuantityOnHand.Sub(quantity)
	s.recomputeWAC()

	mov := Movement{
		ID:          id.NewMovementID(),
		Type:        movType,
		Quantity:    quantity.Neg(),
		ReferenceID: referenceID,
		Reason:      reason,
		PerformedBy: performedBy,
		OccurredAt:  now,
	}
	s.recordMovement(mov)

	return &DepletionResult{
		MovementID:     mov.ID,
		Allocations:    allocations,
		TotalCost:      totalCost,
		QuantityOnHand: s.QuantityOnHand,
	}, nil
}

// Consume depletes stock for an order or production use. Negative stock is
// permitted only when the ledger allows it.
func (s *State) Consume(quantity decimal.Decimal, reason, orderID, performedBy string, now time.Time) (*DepletionResult, error) {
	return s.deplete(MovementConsumption, quantity, reason, orderID, performedBy, s.AllowNegativeStock, now)
}

// Waste depletes stock for spoilage or loss, under the same negative-stock
// policy as Consume.
func (s *State) Waste(quantity decimal.Decimal, reason, referenceID, performedBy string, now time.Time) (*DepletionResult, error) {
	return s.deplete(MovementWaste, quantity, reason, referenceID, performedBy, s.AllowNegativeStock, now)
}

// TransferOut depletes stock bound for a sibling site. Transfers always
// require sufficient batch stock, regardless of AllowNegativeStock. The
// stricter policy is intentional: the receiving site's ReceiveTransfer is
// the paired half of the operation and must be backed by real stock.
func (s *State) TransferOut(quantity decimal.Decimal, destinationSiteID, transferID, performedBy string, now time.Time) (*DepletionResult, error) {
	return s.deplete(MovementTransferOut, quantity, destinationSiteID, transferID, performedBy, false, now)
}

// Adjust unconditionally sets the on-hand quantity to the physical count.
// Batch composition and WAC are untouched.
func (s *State) Adjust(newQuantity decimal.Decimal, reason, performedBy string, now time.Time) Movement {
	delta := newQuantity.Sub(s.QuantityOnHand)
	s.QuantityOnHand = newQuantity

	mov := Movement{
		ID:          id.NewMovementID(),
		Type:        MovementAdjustment,
		Quantity:    delta,
		Reason:      reason,
		PerformedBy: performedBy,
		OccurredAt:  now,
	}
	s.recordMovement(mov)
	return mov
}

// Reverse restores the on-hand quantity by the magnitude of a prior
// depletion movement. Restoration is ledger-level: batches are not
// reconstructed.
func (s *State) Reverse(movementID id.MovementID, reason, performedBy string, now time.Time) (Movement, error) {
	prior, ok := s.FindMovement(movementID)
	if !ok {
		return Movement{}, ErrMovementNotFound
	}
	switch prior.Type {
	case MovementConsumption, MovementWaste, MovementTransferOut:
	default:
		return Movement{}, ErrNotReversible
	}

	restored := prior.Quantity.Abs()
	s.QuantityOnHand = s.QuantityOnHand.Add(restored)

	mov := Movement{
		ID:          id.NewMovementID(),
		Type:        MovementReversal,
		Quantity:    restored,
		ReferenceID: prior.ID.String(),
		Reason:      reason,
		PerformedBy: performedBy,
		OccurredAt:  now,
	}
	s.recordMovement(mov)
	return mov, nil
}

// WriteOffExpired removes every batch past its expiry date, subtracting the
// remaining quantities from stock on hand. Until this transition, expired
// batches remain fully eligible for FIFO consumption.
func (s *State) WriteOffExpired(performedBy string, now time.Time) []WriteOff {
	var written []WriteOff
	kept := s.Batches[:0]
	for i := range s.Batches {
		b := s.Batches[i]
		if !b.Expired(now) {
			kept = append(kept, b)
			continue
		}
		if b.RemainingQuantity.Sign() > 0 {
			s.QuantityOnHand = s.QuantityOnHand.Sub(b.RemainingQuantity)
			written = append(written, WriteOff{
				BatchNumber: b.BatchNumber,
				Quantity:    b.RemainingQuantity,
				UnitCost:    b.UnitCost,
				ExpiredAt:   *b.ExpiryDate,
			})
			s.recordMovement(Movement{
				ID:          id.NewMovementID(),
				Type:        MovementExpiryWriteOff,
				Quantity:    b.RemainingQuantity.Neg(),
				ReferenceID: b.BatchNumber,
				Reason:      "expired",
				PerformedBy: performedBy,
				OccurredAt:  now,
			})
		}
	}
	s.Batches = kept
	if len(written) > 0 {
		s.recomputeWAC()
	}
	return written
}
