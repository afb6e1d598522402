// Package ledger provides the per-facility inventory ledger and the
// quantity adjustment engine.
package ledger

import (
	"math"
	"time"

	"replenix/internal/core/id"
)

// Field names a ledger counter.
type Field string

const (
	FieldOnHand    Field = "qtyOnHand"
	FieldReserved  Field = "qtyReserved"
	FieldInTransit Field = "qtyInTransit"
)

func (f Field) Valid() bool {
	switch f {
	case FieldOnHand, FieldReserved, FieldInTransit:
		return true
	}
	return false
}

// AdjustmentType is how a quantity is applied to a counter.
type AdjustmentType string

const (
	AdjustSet       AdjustmentType = "set"
	AdjustIncrement AdjustmentType = "increment"
	AdjustDecrement AdjustmentType = "decrement"
)

func (t AdjustmentType) Valid() bool {
	switch t {
	case AdjustSet, AdjustIncrement, AdjustDecrement:
		return true
	}
	return false
}

// Apply returns the counter value after applying quantity to previous.
// Decrement clamps at zero and increment saturates at math.MaxInt64.
func (t AdjustmentType) Apply(previous, quantity int64) int64 {
	switch t {
	case AdjustSet:
		return quantity
	case AdjustIncrement:
		if t.Overflows(previous, quantity) {
			return math.MaxInt64
		}
		return previous + quantity
	case AdjustDecrement:
		if quantity >= previous {
			return 0
		}
		return previous - quantity
	}
	return previous
}

// Overflows reports whether applying a non-negative quantity to previous
// would exceed math.MaxInt64.
func (t AdjustmentType) Overflows(previous, quantity int64) bool {
	return t == AdjustIncrement && quantity > math.MaxInt64-previous
}

// Key identifies one ledger row.
type Key struct {
	TenantID   id.ID
	FacilityID id.ID
	PartID     id.ID
}

// Row is the inventory ledger record for one part at one facility.
type Row struct {
	ID           id.ID     `db:"id" json:"id"`
	TenantID     id.ID     `db:"tenant_id" json:"tenantId"`
	FacilityID   id.ID     `db:"facility_id" json:"facilityId"`
	PartID       id.ID     `db:"part_id" json:"partId"`
	QtyOnHand    int64     `db:"qty_on_hand" json:"qtyOnHand"`
	QtyReserved  int64     `db:"qty_reserved" json:"qtyReserved"`
	QtyInTransit int64     `db:"qty_in_transit" json:"qtyInTransit"`
	ReorderPoint int64     `db:"reorder_point" json:"reorderPoint"`
	ReorderQty   int64     `db:"reorder_qty" json:"reorderQty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

func (r Row) Key() Key {
	return Key{TenantID: r.TenantID, FacilityID: r.FacilityID, PartID: r.PartID}
}

// Value returns the counter named by f.
func (r Row) Value(f Field) int64 {
	switch f {
	case FieldOnHand:
		return r.QtyOnHand
	case FieldReserved:
		return r.QtyReserved
	case FieldInTransit:
		return r.QtyInTransit
	}
	return 0
}

// Set stores v in the counter named by f.
func (r *Row) Set(f Field, v int64) {
	switch f {
	case FieldOnHand:
		r.QtyOnHand = v
	case FieldReserved:
		r.QtyReserved = v
	case FieldInTransit:
		r.QtyInTransit = v
	}
}

// Adjustment is one quantity change request.
type Adjustment struct {
	TenantID       id.ID
	FacilityID     id.ID
	PartID         id.ID
	Field          Field
	AdjustmentType AdjustmentType
	Quantity       int64
	Source         string
	ActorID        *id.ID
}

func (a Adjustment) Key() Key {
	return Key{TenantID: a.TenantID, FacilityID: a.FacilityID, PartID: a.PartID}
}

// Result reports the counter before and after an adjustment.
type Result struct {
	PreviousValue int64 `json:"previousValue"`
	NewValue      int64 `json:"newValue"`
}
