package dto

import (
	"fmt"

	"replenix/internal/core/id"
	"replenix/internal/domain/ledger"
)

// AdjustQuantityRequest changes one ledger counter.
type AdjustQuantityRequest struct {
	FacilityID     string `json:"facilityId" binding:"required,uuid"`
	PartID         string `json:"partId" binding:"required,uuid"`
	Field          string `json:"field" binding:"required"`
	AdjustmentType string `json:"adjustmentType" binding:"required"`
	Quantity       int64  `json:"quantity" binding:"gte=0"`
	Source         string `json:"source,omitempty"`
}

func (r *AdjustQuantityRequest) ToAdjustment(tenantID id.ID, actorID *id.ID) (ledger.Adjustment, error) {
	facilityID, err := parseID("facilityId", r.FacilityID)
	if err != nil {
		return ledger.Adjustment{}, err
	}
	partID, err := parseID("partId", r.PartID)
	if err != nil {
		return ledger.Adjustment{}, err
	}
	source := r.Source
	if source == "" {
		source = "api"
	}
	return ledger.Adjustment{
		TenantID:       tenantID,
		FacilityID:     facilityID,
		PartID:         partID,
		Field:          ledger.Field(r.Field),
		AdjustmentType: ledger.AdjustmentType(r.AdjustmentType),
		Quantity:       r.Quantity,
		Source:         source,
		ActorID:        actorID,
	}, nil
}

// AdjustBatchRequest applies several adjustments atomically.
type AdjustBatchRequest struct {
	Adjustments []AdjustQuantityRequest `json:"adjustments" binding:"required,min=1,dive"`
}

func (r *AdjustBatchRequest) ToAdjustments(tenantID id.ID, actorID *id.ID) ([]ledger.Adjustment, error) {
	out := make([]ledger.Adjustment, 0, len(r.Adjustments))
	for i := range r.Adjustments {
		adj, err := r.Adjustments[i].ToAdjustment(tenantID, actorID)
		if err != nil {
			return nil, fmt.Errorf("adjustments[%d]: %w", i, err)
		}
		out = append(out, adj)
	}
	return out, nil
}

// LedgerQuery selects one ledger row.
type LedgerQuery struct {
	FacilityID string `form:"facilityId" binding:"required,uuid"`
	PartID     string `form:"partId" binding:"required,uuid"`
}

func (q *LedgerQuery) ToKey(tenantID id.ID) (ledger.Key, error) {
	facilityID, err := parseID("facilityId", q.FacilityID)
	if err != nil {
		return ledger.Key{}, err
	}
	partID, err := parseID("partId", q.PartID)
	if err != nil {
		return ledger.Key{}, err
	}
	return ledger.Key{TenantID: tenantID, FacilityID: facilityID, PartID: partID}, nil
}

// AdjustBatchResponse lists results in request order.
type AdjustBatchResponse struct {
	Results []ledger.Result `json:"results"`
}
