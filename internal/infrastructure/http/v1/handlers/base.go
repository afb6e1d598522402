// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"replenix/internal/core/apperror"
	"replenix/internal/core/id"
	"replenix/internal/infrastructure/http/v1/middleware"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// PathID parses a uuid path parameter.
func (h *BaseHandler) PathID(c *gin.Context, name string) (id.ID, bool) {
	v, err := id.Parse(c.Param(name))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id").WithDetail("param", name))
		return id.Nil(), false
	}
	return v, true
}

// Error registers err on the Gin context and aborts the request.
// The JSON response is produced by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// Tenant returns the tenant established by the Identity middleware.
func (h *BaseHandler) Tenant(c *gin.Context) id.ID {
	return middleware.TenantID(c)
}

// Actor returns the acting user, or nil for system calls.
func (h *BaseHandler) Actor(c *gin.Context) *id.ID {
	return middleware.ActorID(c)
}

// Created sends a 201 response.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	middleware.CompleteIdempotency(c, http.StatusCreated, "application/json", data)
	c.JSON(http.StatusCreated, data)
}

// OK sends a 200 response.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	middleware.CompleteIdempotency(c, http.StatusOK, "application/json", data)
	c.JSON(http.StatusOK, data)
}
