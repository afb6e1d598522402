package numerator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"replenix/internal/core/id"
)

// MockGenerator is an in-memory Generator for unit tests.
// Without NextNumberFunc it keeps one counter per tenant and period key.
type MockGenerator struct {
	NextNumberFunc func(ctx context.Context, tenantID id.ID, cfg Config, period time.Time) (string, error)

	mu       sync.Mutex
	counters map[string]int64
}

// NextNumber implements Generator.
func (m *MockGenerator) NextNumber(ctx context.Context, tenantID id.ID, cfg Config, period time.Time) (string, error) {
	if m.NextNumberFunc != nil {
		return m.NextNumberFunc(ctx, tenantID, cfg, period)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	key := fmt.Sprintf("%s:%s", tenantID, cfg.PeriodKey(period))
	m.counters[key]++
	return cfg.Format(period, m.counters[key]), nil
}

var _ Generator = (*MockGenerator)(nil)
