// Package numerator provides the PostgreSQL implementation of document
// auto-numbering. It implements core/numerator.Generator.
package numerator

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"replenix/internal/core/id"
	corenumerator "replenix/internal/core/numerator"
	"replenix/internal/infrastructure/storage/postgres"
)

// Querier is the subset of pgx.Tx the generator needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Target names the table and column holding issued numbers.
type Target struct {
	Table  string
	Column string
}

// ReceiptTarget is where receipt numbers live.
var ReceiptTarget = Target{Table: "receipts", Column: "receipt_number"}

// Service issues numbers by counting the documents already numbered in the
// period, serialized per (tenant, period) with a transaction-scoped advisory
// lock. A number becomes permanent only when the caller's transaction
// commits; a rollback releases it for the next caller.
type Service struct {
	target  Target
	querier func(ctx context.Context) (Querier, error)
}

var _ corenumerator.Generator = (*Service)(nil)

// New creates a generator that runs in the transaction carried by ctx.
func New(target Target) *Service {
	return &Service{
		target: target,
		querier: func(ctx context.Context) (Querier, error) {
			t, err := postgres.RequireTx(ctx)
			if err != nil {
				return nil, err
			}
			return t, nil
		},
	}
}

// NextNumber implements corenumerator.Generator.
func (s *Service) NextNumber(ctx context.Context, tenantID id.ID, cfg corenumerator.Config, period time.Time) (string, error) {
	q, err := s.querier(ctx)
	if err != nil {
		return "", fmt.Errorf("next number: %w", err)
	}

	lockKey := lockKey(cfg, tenantID, period)
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return "", fmt.Errorf("lock %s: %w", lockKey, err)
	}

	var issued int64
	sql := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE tenant_id = $1 AND %s LIKE $2`,
		pgx.Identifier{s.target.Table}.Sanitize(), pgx.Identifier{s.target.Column}.Sanitize())
	if err := q.QueryRow(ctx, sql, tenantID, periodPattern(cfg, period)).Scan(&issued); err != nil {
		return "", fmt.Errorf("count issued numbers: %w", err)
	}

	return cfg.Format(period, issued+1), nil
}

// lockKey is e.g. "receipt:<tenant>:20261017".
func lockKey(cfg corenumerator.Config, tenantID id.ID, period time.Time) string {
	return fmt.Sprintf("%s:%s:%s", lockName(cfg.Prefix), tenantID, cfg.PeriodKey(period))
}

func lockName(prefix string) string {
	if prefix == corenumerator.ReceiptConfig().Prefix {
		return "receipt"
	}
	return prefix
}

// periodPattern matches every number formatted for period, e.g.
// "RCV-20261017-%".
func periodPattern(cfg corenumerator.Config, period time.Time) string {
	if key := cfg.PeriodKey(period); key != "" {
		return fmt.Sprintf("%s-%s-%%", cfg.Prefix, key)
	}
	return cfg.Prefix + "-%"
}
