// Package numerator provides domain contracts for document auto-numbering.
// Implementations live in infrastructure layer.
package numerator

import (
	"context"
	"time"

	"replenix/internal/core/id"
)

// Generator generates sequential, per-tenant document numbers.
type Generator interface {
	// NextNumber returns the next number for tenant in the period bucket.
	// It must be called inside the transaction that persists the numbered
	// document: the number is reserved only if that transaction commits.
	NextNumber(ctx context.Context, tenantID id.ID, cfg Config, period time.Time) (string, error)
}
