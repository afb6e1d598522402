package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"replenix/internal/domain/ledger"
	"replenix/internal/infrastructure/http/v1/dto"
)

// InventoryService is the ledger surface the handler exposes.
type InventoryService interface {
	Get(ctx context.Context, key ledger.Key) (ledger.Row, error)
	Adjust(ctx context.Context, adj ledger.Adjustment) (ledger.Result, error)
	AdjustBatch(ctx context.Context, adjs []ledger.Adjustment) ([]ledger.Result, error)
}

// InventoryHandler handles /inventory endpoints.
type InventoryHandler struct {
	*BaseHandler
	service InventoryService
}

func NewInventoryHandler(base *BaseHandler, service InventoryService) *InventoryHandler {
	return &InventoryHandler{BaseHandler: base, service: service}
}

func (h *InventoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ledger", h.GetLedger)
	rg.POST("/adjust", h.Adjust)
	rg.POST("/adjust/batch", h.AdjustBatch)
}

// GetLedger handles GET /inventory/ledger?facilityId=&partId=.
func (h *InventoryHandler) GetLedger(c *gin.Context) {
	var q dto.LedgerQuery
	if !h.BindQuery(c, &q) {
		return
	}
	key, err := q.ToKey(h.Tenant(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	row, err := h.service.Get(c.Request.Context(), key)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, row)
}

// Adjust handles POST /inventory/adjust.
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req dto.AdjustQuantityRequest
	if !h.BindJSON(c, &req) {
		return
	}
	adj, err := req.ToAdjustment(h.Tenant(c), h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.service.Adjust(c.Request.Context(), adj)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// AdjustBatch handles POST /inventory/adjust/batch.
func (h *InventoryHandler) AdjustBatch(c *gin.Context) {
	var req dto.AdjustBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}
	adjs, err := req.ToAdjustments(h.Tenant(c), h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	results, err := h.service.AdjustBatch(c.Request.Context(), adjs)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.AdjustBatchResponse{Results: results})
}
