package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"replenix/internal/core/id"
	"replenix/internal/domain/orders"
	"replenix/internal/domain/receiving"
	"replenix/internal/infrastructure/http/v1/dto"
)

// ReceivingService is the receiving surface the handler exposes.
type ReceivingService interface {
	ProcessReceipt(ctx context.Context, in receiving.ProcessInput) (*receiving.ProcessResult, error)
	GetReceipt(ctx context.Context, tenantID, receiptID id.ID) (*receiving.ReceiptDetail, error)
	ListExceptions(ctx context.Context, tenantID id.ID, filter receiving.ExceptionFilter) ([]receiving.Exception, error)
	ResolveException(ctx context.Context, in receiving.ResolveInput) (*receiving.Exception, error)
	GetExpectedOrders(ctx context.Context, tenantID id.ID, facilityID *id.ID, orderType *orders.Type) (orders.ExpectedOrders, error)
}

// ReceivingHandler handles /receiving endpoints.
type ReceivingHandler struct {
	*BaseHandler
	service ReceivingService
}

func NewReceivingHandler(base *BaseHandler, service ReceivingService) *ReceivingHandler {
	return &ReceivingHandler{BaseHandler: base, service: service}
}

// RegisterRoutes mounts the handler on rg.
func (h *ReceivingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/receipts", h.ProcessReceipt)
	rg.GET("/receipts/:id", h.GetReceipt)
	rg.GET("/expected", h.ExpectedOrders)
	rg.GET("/exceptions", h.ListExceptions)
	rg.POST("/exceptions/:id/resolve", h.ResolveException)
}

// ProcessReceipt handles POST /receiving/receipts.
func (h *ReceivingHandler) ProcessReceipt(c *gin.Context) {
	var req dto.ProcessReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput(h.Tenant(c), h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.service.ProcessReceipt(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// GetReceipt handles GET /receiving/receipts/:id.
func (h *ReceivingHandler) GetReceipt(c *gin.Context) {
	receiptID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.service.GetReceipt(c.Request.Context(), h.Tenant(c), receiptID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, detail)
}

// ExpectedOrders handles GET /receiving/expected.
func (h *ReceivingHandler) ExpectedOrders(c *gin.Context) {
	var q dto.ExpectedOrdersQuery
	if !h.BindQuery(c, &q) {
		return
	}
	facilityID, orderType, err := q.Parse()
	if err != nil {
		h.Error(c, err)
		return
	}

	out, err := h.service.GetExpectedOrders(c.Request.Context(), h.Tenant(c), facilityID, orderType)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, out)
}

// ListExceptions handles GET /receiving/exceptions.
func (h *ReceivingHandler) ListExceptions(c *gin.Context) {
	var q dto.ListExceptionsQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	items, err := h.service.ListExceptions(c.Request.Context(), h.Tenant(c), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	if items == nil {
		items = []receiving.Exception{}
	}
	h.OK(c, dto.ListResponse{Items: items, Count: len(items)})
}

// ResolveException handles POST /receiving/exceptions/:id/resolve.
func (h *ReceivingHandler) ResolveException(c *gin.Context) {
	exceptionID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.ResolveExceptionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	exc, err := h.service.ResolveException(c.Request.Context(), req.ToInput(h.Tenant(c), exceptionID, h.Actor(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, exc)
}
