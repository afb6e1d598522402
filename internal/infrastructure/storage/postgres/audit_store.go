package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/zstd"

	"replenix/internal/core/id"
	"replenix/internal/domain/audit"
)

// CompressionAlgo names how oversized snapshots are stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const defaultCompressThreshold = 10 * 1024

var (
	_ audit.Writer = (*AuditStore)(nil)
	_ audit.Reader = (*AuditStore)(nil)
)

// auditRow is a row of audit_log. Snapshots above the threshold live in the
// *_compressed columns and the JSONB columns are NULL.
type auditRow struct {
	audit.Entry
	PreviousStateCompressed []byte          `db:"previous_state_compressed"`
	NewStateCompressed      []byte          `db:"new_state_compressed"`
	CompressionAlgo         CompressionAlgo `db:"compression_algo"`
}

// AuditStore is the Postgres audit chain. Appends for a tenant are
// serialized with a transaction-scoped advisory lock, so sequence numbers
// are gapless and every entry hashes over its committed predecessor.
type AuditStore struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
	now               func() time.Time
}

// NewAuditStore creates the store.
func NewAuditStore(txManager *TxManager) (*AuditStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AuditStore{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: defaultCompressThreshold,
		now:               func() time.Time { return time.Now().UTC() },
	}, nil
}

// Append seals e as the tenant's next entry and inserts it. It must run
// inside the transaction of the audited mutation.
func (s *AuditStore) Append(ctx context.Context, e audit.Entry) (audit.AppendResult, error) {
	t, err := RequireTx(ctx)
	if err != nil {
		return audit.AppendResult{}, err
	}

	if _, err := t.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('audit:' || $1::text))`, e.TenantID); err != nil {
		return audit.AppendResult{}, fmt.Errorf("lock audit chain: %w", err)
	}

	var (
		lastSeq  int64
		lastHash = audit.GenesisHash
	)
	err = t.QueryRow(ctx, `
		SELECT sequence_number, hash_chain FROM audit_log
		WHERE tenant_id = $1
		ORDER BY sequence_number DESC
		LIMIT 1
	`, e.TenantID).Scan(&lastSeq, &lastHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return audit.AppendResult{}, fmt.Errorf("read chain head: %w", err)
	}

	sealed, err := audit.Seal(e, lastSeq+1, lastHash, s.now())
	if err != nil {
		return audit.AppendResult{}, fmt.Errorf("seal entry: %w", err)
	}

	row := s.compress(sealed)
	_, err = t.Exec(ctx, `
		INSERT INTO audit_log (
			id, tenant_id, actor_id, action, entity_type, entity_id,
			previous_state, new_state, previous_state_compressed, new_state_compressed,
			compression_algo, metadata, ip_address, user_agent,
			sequence_number, hash_chain, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		row.ID, row.TenantID, row.ActorID, row.Action, row.EntityType, row.EntityID,
		nullJSON(row.PreviousState), nullJSON(row.NewState), row.PreviousStateCompressed, row.NewStateCompressed,
		row.CompressionAlgo, nullJSON(row.Metadata), row.IPAddress, row.UserAgent,
		row.SequenceNumber, row.HashChain, row.CreatedAt,
	)
	if err != nil {
		return audit.AppendResult{}, fmt.Errorf("insert audit entry: %w", err)
	}

	return audit.AppendResult{
		ID:             sealed.ID,
		SequenceNumber: sealed.SequenceNumber,
		HashChain:      sealed.HashChain,
	}, nil
}

// ListTenants returns every tenant with a chain.
func (s *AuditStore) ListTenants(ctx context.Context) ([]id.ID, error) {
	var tenants []id.ID
	err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &tenants,
		`SELECT DISTINCT tenant_id FROM audit_log ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("list audit tenants: %w", err)
	}
	return tenants, nil
}

// ListChain returns a tenant's entries in sequence order with snapshots
// decompressed.
func (s *AuditStore) ListChain(ctx context.Context, tenantID id.ID) ([]audit.Entry, error) {
	var rows []auditRow
	err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &rows, `
		SELECT id, tenant_id, actor_id, action, entity_type, entity_id,
			previous_state, new_state, previous_state_compressed, new_state_compressed,
			compression_algo, metadata, ip_address, user_agent,
			sequence_number, hash_chain, created_at
		FROM audit_log
		WHERE tenant_id = $1
		ORDER BY sequence_number
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list audit chain: %w", err)
	}

	entries := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := s.decompress(r)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", r.SequenceNumber, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *AuditStore) compress(e audit.Entry) auditRow {
	row := auditRow{Entry: e, CompressionAlgo: CompressionNone}
	if len(e.PreviousState) > s.compressThreshold {
		row.PreviousStateCompressed = s.encoder.EncodeAll(e.PreviousState, nil)
		row.PreviousState = nil
		row.CompressionAlgo = CompressionZstd
	}
	if len(e.NewState) > s.compressThreshold {
		row.NewStateCompressed = s.encoder.EncodeAll(e.NewState, nil)
		row.NewState = nil
		row.CompressionAlgo = CompressionZstd
	}
	return row
}

func (s *AuditStore) decompress(r auditRow) (audit.Entry, error) {
	e := r.Entry
	if r.CompressionAlgo != CompressionZstd {
		return e, nil
	}
	if len(r.PreviousStateCompressed) > 0 {
		raw, err := s.decoder.DecodeAll(r.PreviousStateCompressed, nil)
		if err != nil {
			return audit.Entry{}, fmt.Errorf("decompress previous state: %w", err)
		}
		e.PreviousState = raw
	}
	if len(r.NewStateCompressed) > 0 {
		raw, err := s.decoder.DecodeAll(r.NewStateCompressed, nil)
		if err != nil {
			return audit.Entry{}, fmt.Errorf("decompress new state: %w", err)
		}
		e.NewState = raw
	}
	return e, nil
}

// nullJSON stores the JSON literal null as SQL NULL.
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}
