// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// UserContext is the identity attached to every mutation by upstream
// authentication. Fields are opaque strings; parsing happens at the edge.
type UserContext struct {
	UserID    string
	TenantID  string
	IPAddress string
	UserAgent string
	SessionID string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetRequestMeta returns the requester IP address and user agent.
func GetRequestMeta(ctx context.Context) (ipAddress, userAgent string) {
	if u := GetUser(ctx); u != nil {
		return u.IPAddress, u.UserAgent
	}
	return "", ""
}
