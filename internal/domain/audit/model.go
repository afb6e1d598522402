// Package audit provides the tamper-evident audit trail: entry model,
// canonical hashing, chain verification and the writer contract.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	appctx "replenix/internal/core/context"
	"replenix/internal/core/id"
)

// Actions recorded by the services.
const (
	ActionReceiptCreated     = "receipt.created"
	ActionExceptionResolved  = "exception.resolved"
	ActionInventoryAdjusted  = "inventory.adjusted"
	ActionCardStageChanged   = "card.stage_changed"
	ActionWorkOrderCompleted = "work_order.completed"
)

// Entity types.
const (
	EntityReceipt   = "receipt"
	EntityException = "receiving_exception"
	EntityLedger    = "inventory_ledger"
	EntityCard      = "kanban_card"
	EntityWorkOrder = "work_order"
)

// Entry is one append-only audit record.
// PreviousState and NewState are snapshots of the changed fields, not diffs.
type Entry struct {
	ID             id.ID           `db:"id" json:"id"`
	TenantID       id.ID           `db:"tenant_id" json:"tenantId"`
	ActorID        *id.ID          `db:"actor_id" json:"actorId"`
	Action         string          `db:"action" json:"action"`
	EntityType     string          `db:"entity_type" json:"entityType"`
	EntityID       id.ID           `db:"entity_id" json:"entityId"`
	PreviousState  json.RawMessage `db:"previous_state" json:"previousState"`
	NewState       json.RawMessage `db:"new_state" json:"newState"`
	Metadata       json.RawMessage `db:"metadata" json:"metadata"`
	IPAddress      string          `db:"ip_address" json:"ipAddress"`
	UserAgent      string          `db:"user_agent" json:"userAgent"`
	SequenceNumber int64           `db:"sequence_number" json:"sequenceNumber"`
	HashChain      string          `db:"hash_chain" json:"hashChain"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

// AppendResult identifies an appended entry in its chain.
type AppendResult struct {
	ID             id.ID
	SequenceNumber int64
	HashChain      string
}

// Writer appends entries to a tenant's chain. Implementations must run
// inside the transaction of the mutation being audited and return
// tx.ErrNoTransaction otherwise.
type Writer interface {
	Append(ctx context.Context, entry Entry) (AppendResult, error)
}

// Reader loads chains for verification.
type Reader interface {
	// ListTenants returns every tenant with at least one entry.
	ListTenants(ctx context.Context) ([]id.ID, error)

	// ListChain returns the tenant's entries ordered by sequence number.
	ListChain(ctx context.Context, tenantID id.ID) ([]Entry, error)
}

// Change describes a mutation to audit.
type Change struct {
	TenantID   id.ID
	ActorID    *id.ID
	Action     string
	EntityType string
	EntityID   id.ID
	Previous   any
	Next       any
	Metadata   any
}

// NewEntry builds an Entry from a change, taking the requester address and
// agent from ctx. Previous, Next and Metadata are JSON encoded; nil values
// stay empty.
func NewEntry(ctx context.Context, c Change) (Entry, error) {
	e := Entry{
		TenantID:   c.TenantID,
		ActorID:    c.ActorID,
		Action:     c.Action,
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
	}

	var err error
	if e.PreviousState, err = marshalSnapshot(c.Previous); err != nil {
		return Entry{}, fmt.Errorf("previous state: %w", err)
	}
	if e.NewState, err = marshalSnapshot(c.Next); err != nil {
		return Entry{}, fmt.Errorf("new state: %w", err)
	}
	if e.Metadata, err = marshalSnapshot(c.Metadata); err != nil {
		return Entry{}, fmt.Errorf("metadata: %w", err)
	}

	e.IPAddress, e.UserAgent = appctx.GetRequestMeta(ctx)
	return e, nil
}

// Record builds an entry for c and appends it with w.
func Record(ctx context.Context, w Writer, c Change) (AppendResult, error) {
	entry, err := NewEntry(ctx, c)
	if err != nil {
		return AppendResult{}, fmt.Errorf("build audit entry: %w", err)
	}
	res, err := w.Append(ctx, entry)
	if err != nil {
		return AppendResult{}, fmt.Errorf("append audit entry: %w", err)
	}
	return res, nil
}

func marshalSnapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
