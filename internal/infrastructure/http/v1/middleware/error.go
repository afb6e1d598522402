package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"replenix/internal/core/apperror"
	appctx "replenix/internal/core/context"
	"replenix/pkg/logger"
)

// ErrorBody is the JSON error response.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		// Handler already wrote a response.
		if c.Writer.Written() {
			return
		}

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}

			body := ErrorBody{
				Code:    appErr.Code,
				Message: appErr.Message,
				Details: appErr.Details,
			}
			FailIdempotency(c, appErr.HTTPStatus, body)
			c.JSON(appErr.HTTPStatus, body)
			return
		}

		logger.Error(c.Request.Context(), "unhandled error", "error", err)

		body := ErrorBody{
			Code:    apperror.CodeInternal,
			Message: "Internal server error",
			Details: map[string]any{"request_id": appctx.GetRequestID(c.Request.Context())},
		}
		FailIdempotency(c, http.StatusInternalServerError, body)
		c.JSON(http.StatusInternalServerError, body)
	}
}
