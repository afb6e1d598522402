package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"replenix/internal/core/id"
	"replenix/internal/domain/orders"
)

// WorkOrderService completes work orders.
type WorkOrderService interface {
	CompleteWorkOrder(ctx context.Context, tenantID, workOrderID id.ID, actorID *id.ID) (*orders.WorkOrder, error)
}

// OrdersHandler handles /orders endpoints.
type OrdersHandler struct {
	*BaseHandler
	service WorkOrderService
}

func NewOrdersHandler(base *BaseHandler, service WorkOrderService) *OrdersHandler {
	return &OrdersHandler{BaseHandler: base, service: service}
}

func (h *OrdersHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/work/:id/complete", h.CompleteWorkOrder)
}

// CompleteWorkOrder handles POST /orders/work/:id/complete.
func (h *OrdersHandler) CompleteWorkOrder(c *gin.Context) {
	woID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	wo, err := h.service.CompleteWorkOrder(c.Request.Context(), h.Tenant(c), woID, h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, wo)
}
