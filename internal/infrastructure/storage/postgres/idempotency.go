package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"replenix/internal/core/apperror"
)

// IdempotencyStatus is the state of a keyed request.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// staleAfter is how long a pending key may sit before another request may
// reclaim it.
const staleAfter = time.Minute

// IdempotencyRecord is a row of sys_idempotency.
type IdempotencyRecord struct {
	TenantID    string            `db:"tenant_id"`
	Key         string            `db:"idempotency_key"`
	UserID      string            `db:"user_id"`
	Operation   string            `db:"operation"`
	Status      IdempotencyStatus `db:"status"`
	RequestHash string            `db:"request_hash"`
	Response    []byte            `db:"response"`
	StatusCode  int               `db:"response_status"`
	ContentType string            `db:"response_content_type"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IdempotencyReplay is a stored response to send again.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyRequest identifies one keyed request.
type IdempotencyRequest struct {
	TenantID    string
	Key         string
	UserID      string
	Operation   string
	RequestHash string
}

// IdempotencyStore keeps X-Idempotency-Key state per tenant.
type IdempotencyStore struct {
	txManager *TxManager
	ttl       time.Duration
	now       func() time.Time
}

func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		txManager: txManager,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AcquireKey claims req.Key for this request. It returns
//   - (nil, nil) when the caller owns the key and should execute,
//   - (replay, nil) when the request already finished,
//   - an IDEMPOTENCY_CONFLICT error when the key is in flight or was used for
//     a different request.
func (s *IdempotencyStore) AcquireKey(ctx context.Context, req IdempotencyRequest) (*IdempotencyReplay, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	var (
		record   IdempotencyRecord
		inserted bool
	)
	err := s.txManager.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_idempotency (tenant_id, idempotency_key, user_id, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8)
		ON CONFLICT (tenant_id, idempotency_key) DO UPDATE SET
			expires_at = GREATEST(sys_idempotency.expires_at, EXCLUDED.expires_at)
		RETURNING user_id, operation, status, request_hash, response,
			COALESCE(response_status, 0), COALESCE(response_content_type, ''),
			updated_at, (xmax = 0)
	`, req.TenantID, req.Key, req.UserID, req.Operation, IdempotencyStatusPending, req.RequestHash, now, expiresAt).Scan(
		&record.UserID, &record.Operation, &record.Status, &record.RequestHash, &record.Response,
		&record.StatusCode, &record.ContentType, &record.UpdatedAt, &inserted,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if inserted {
		return nil, nil
	}

	if record.UserID != req.UserID || record.Operation != req.Operation || record.RequestHash != req.RequestHash {
		return nil, apperror.NewIdempotencyMismatch(req.Key).
			WithDetail("operation", req.Operation)
	}

	switch record.Status {
	case IdempotencyStatusSuccess, IdempotencyStatusFailed:
		return &IdempotencyReplay{
			StatusCode:  replayStatus(record.StatusCode),
			ContentType: replayContentType(record.ContentType),
			Body:        record.Response,
		}, nil
	}

	if now.Sub(record.UpdatedAt) <= staleAfter {
		return nil, apperror.NewIdempotencyConflict(req.Key)
	}

	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency SET updated_at = $1
		WHERE tenant_id = $2 AND idempotency_key = $3 AND status = $4 AND updated_at = $5
	`, now, req.TenantID, req.Key, IdempotencyStatusPending, record.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("reclaim stale key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperror.NewIdempotencyConflict(req.Key)
	}
	return nil, nil
}

// CompleteKey stores the response of a successful request.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, tenantID, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, tenantID, key, IdempotencyStatusSuccess, statusCode, contentType, response)
}

// FailKey stores the response of a rejected request so retries replay it.
func (s *IdempotencyStore) FailKey(ctx context.Context, tenantID, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, tenantID, key, IdempotencyStatusFailed, statusCode, contentType, response)
}

// ReleaseKey drops a pending key so the request can be retried. Used when
// the failure is transient.
func (s *IdempotencyStore) ReleaseKey(ctx context.Context, tenantID, key string) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_idempotency WHERE tenant_id = $1 AND idempotency_key = $2 AND status = $3
	`, tenantID, key, IdempotencyStatusPending)
	return err
}

func (s *IdempotencyStore) finish(ctx context.Context, tenantID, key string, status IdempotencyStatus, statusCode int, contentType string, response any) error {
	var body []byte
	if response != nil {
		var err error
		if body, err = json.Marshal(response); err != nil {
			return fmt.Errorf("marshal idempotent response: %w", err)
		}
	}
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1, response = $2, response_status = $3, response_content_type = $4, updated_at = $5
		WHERE tenant_id = $6 AND idempotency_key = $7
	`, status, body, statusCode, contentType, s.now(), tenantID, key)
	return err
}

// CleanupExpired removes expired records and returns how many.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_idempotency WHERE expires_at < $1
	`, s.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func replayStatus(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}

func replayContentType(ct string) string {
	if ct == "" {
		return "application/json"
	}
	return ct
}
