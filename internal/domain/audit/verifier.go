package audit

import (
	"context"
	"errors"
	"fmt"

	"replenix/internal/core/id"
	"replenix/pkg/logger"
)

// TenantReport is the verification outcome for one tenant.
type TenantReport struct {
	TenantID id.ID
	Verified int
	Break    *ChainBreakError
}

// Verifier checks stored chains. It reports breaks and never repairs them.
type Verifier struct {
	reader Reader
}

func NewVerifier(reader Reader) *Verifier {
	return &Verifier{reader: reader}
}

// VerifyTenant verifies one tenant's chain.
func (v *Verifier) VerifyTenant(ctx context.Context, tenantID id.ID) (TenantReport, error) {
	entries, err := v.reader.ListChain(ctx, tenantID)
	if err != nil {
		return TenantReport{}, fmt.Errorf("list chain: %w", err)
	}

	report := TenantReport{TenantID: tenantID}
	n, err := VerifyChain(entries)
	report.Verified = n
	if err != nil {
		var cb *ChainBreakError
		if !errors.As(err, &cb) {
			return report, err
		}
		report.Break = cb
	}
	return report, nil
}

// VerifyAll verifies every tenant and logs breaks at error level.
func (v *Verifier) VerifyAll(ctx context.Context) ([]TenantReport, error) {
	tenants, err := v.reader.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	reports := make([]TenantReport, 0, len(tenants))
	for _, t := range tenants {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		r, err := v.VerifyTenant(ctx, t)
		if err != nil {
			return reports, fmt.Errorf("verify tenant %s: %w", t, err)
		}
		if r.Break != nil {
			logger.Error(ctx, "audit chain verification failed",
				"tenant_id", t,
				"sequence_number", r.Break.SequenceNumber,
				"reason", r.Break.Reason,
				"verified", r.Verified,
			)
		} else {
			logger.Debug(ctx, "audit chain verified", "tenant_id", t, "entries", r.Verified)
		}
		reports = append(reports, r)
	}
	return reports, nil
}
