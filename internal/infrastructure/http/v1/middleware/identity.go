package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"replenix/internal/core/apperror"
	appctx "replenix/internal/core/context"
	"replenix/internal/core/id"
)

const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

// Gin context keys set by Identity.
const (
	KeyTenantID = "tenant_id"
	KeyActorID  = "actor_id"
)

// Identity reads the tenant and user established by the upstream gateway
// and puts them on the request context. The tenant is mandatory.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := id.Parse(c.GetHeader(HeaderTenantID))
		if err != nil || id.IsNil(tenantID) {
			_ = c.Error(apperror.NewValidation("missing or invalid tenant").
				WithDetail("header", HeaderTenantID))
			c.Abort()
			return
		}

		actorID, err := id.ParseOptional(c.GetHeader(HeaderUserID))
		if err != nil {
			_ = c.Error(apperror.NewValidation("invalid user").
				WithDetail("header", HeaderUserID))
			c.Abort()
			return
		}

		user := &appctx.UserContext{
			TenantID:  tenantID.String(),
			IPAddress: c.ClientIP(),
			UserAgent: sanitizeUserAgent(c.Request.UserAgent()),
		}
		if actorID != nil {
			user.UserID = actorID.String()
		}
		c.Request = c.Request.WithContext(appctx.WithUser(c.Request.Context(), user))

		c.Set(KeyTenantID, tenantID)
		c.Set(KeyActorID, actorID)
		c.Next()
	}
}

// TenantID returns the tenant set by Identity.
func TenantID(c *gin.Context) id.ID {
	v, _ := c.Get(KeyTenantID)
	t, _ := v.(id.ID)
	return t
}

// ActorID returns the acting user set by Identity, or nil.
func ActorID(c *gin.Context) *id.ID {
	v, _ := c.Get(KeyActorID)
	a, _ := v.(*id.ID)
	return a
}

// sanitizeUserAgent makes a client supplied header safe for a Postgres TEXT
// column, which rejects invalid UTF-8 and NUL bytes.
func sanitizeUserAgent(ua string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(ua, "\uFFFD"), "\x00", "")
}
