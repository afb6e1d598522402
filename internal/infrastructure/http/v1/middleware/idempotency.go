package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"replenix/internal/core/apperror"
	"replenix/internal/infrastructure/storage/postgres"
	"replenix/pkg/logger"
)

const (
	HeaderIdempotencyKey    = "X-Idempotency-Key"
	maxIdempotencyBodyBytes = 1 << 20

	keyIdempotencyKey   = "idempotency_key"
	keyIdempotencyStore = "idempotency_store"
)

// IdempotencyStore keeps keyed request outcomes.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, req postgres.IdempotencyRequest) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, tenantID, key string, statusCode int, contentType string, response any) error
	FailKey(ctx context.Context, tenantID, key string, statusCode int, contentType string, response any) error
	ReleaseKey(ctx context.Context, tenantID, key string) error
}

// Idempotency replays the stored response of a POST/PUT/PATCH whose
// X-Idempotency-Key was already used by the same tenant. Runs after Identity.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, _ := io.ReadAll(limited)
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)

		var actor string
		if a := ActorID(c); a != nil {
			actor = a.String()
		}

		replay, err := store.AcquireKey(c.Request.Context(), postgres.IdempotencyRequest{
			TenantID:    TenantID(c).String(),
			Key:         key,
			UserID:      actor,
			Operation:   c.Request.Method + " " + c.FullPath(),
			RequestHash: hex.EncodeToString(hash[:]),
		})
		if err != nil {
			if _, ok := apperror.AsAppError(err); !ok {
				err = apperror.NewInternal(err).WithDetail("component", "idempotency")
			}
			_ = c.Error(err)
			c.Abort()
			return
		}

		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		c.Set(keyIdempotencyKey, key)
		c.Set(keyIdempotencyStore, store)
		c.Next()
	}
}

func idempotencyState(c *gin.Context) (IdempotencyStore, string, bool) {
	key := c.GetString(keyIdempotencyKey)
	if key == "" {
		return nil, "", false
	}
	v, _ := c.Get(keyIdempotencyStore)
	store, ok := v.(IdempotencyStore)
	return store, key, ok && store != nil
}

// CompleteIdempotency records a successful response for replay.
func CompleteIdempotency(c *gin.Context, statusCode int, contentType string, response any) {
	store, key, ok := idempotencyState(c)
	if !ok {
		return
	}
	if err := store.CompleteKey(c.Request.Context(), TenantID(c).String(), key, statusCode, contentType, response); err != nil {
		logger.Warn(c.Request.Context(), "complete idempotency key", "key", key, "error", err)
	}
}

// FailIdempotency records an error response for replay. Server-side
// failures release the key instead so the client may retry.
func FailIdempotency(c *gin.Context, statusCode int, response any) {
	store, key, ok := idempotencyState(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	tenant := TenantID(c).String()

	var err error
	if statusCode >= http.StatusInternalServerError {
		err = store.ReleaseKey(ctx, tenant, key)
	} else {
		err = store.FailKey(ctx, tenant, key, statusCode, "application/json", response)
	}
	if err != nil {
		logger.Warn(ctx, "finish idempotency key", "key", key, "error", err)
	}
}
