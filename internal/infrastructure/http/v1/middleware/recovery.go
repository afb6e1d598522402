// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"replenix/internal/core/apperror"
	appctx "replenix/internal/core/context"
	"replenix/pkg/logger"
)

// Recovery middleware recovers from panics and returns 500 error.
// Logs stack trace but never exposes internal details to client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
				)

				_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", err)))
				if c.Writer.Written() {
					c.Abort()
					return
				}
				body := ErrorBody{
					Code:    apperror.CodeInternal,
					Message: "Internal server error",
					Details: map[string]any{"request_id": appctx.GetRequestID(c.Request.Context())},
				}
				FailIdempotency(c, http.StatusInternalServerError, body)
				c.AbortWithStatusJSON(http.StatusInternalServerError, body)
			}
		}()
		c.Next()
	}
}
