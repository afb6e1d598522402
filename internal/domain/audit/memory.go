package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"replenix/internal/core/id"
)

// MemoryStore is an in-process Writer and Reader. It backs the service
// tests of every package that audits.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[id.ID][]Entry

	// Now overrides the clock.
	Now func() time.Time

	// OnAppend, when set, is called with the sealed entry; a returned error
	// fails the append.
	OnAppend func(ctx context.Context, e Entry) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[id.ID][]Entry)}
}

var (
	_ Writer = (*MemoryStore)(nil)
	_ Reader = (*MemoryStore)(nil)
)

func (s *MemoryStore) Append(ctx context.Context, e Entry) (AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.entries[e.TenantID]
	seq := int64(len(chain) + 1)
	prev := GenesisHash
	if len(chain) > 0 {
		prev = chain[len(chain)-1].HashChain
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	sealed, err := Seal(e, seq, prev, now)
	if err != nil {
		return AppendResult{}, err
	}
	if s.OnAppend != nil {
		if err := s.OnAppend(ctx, sealed); err != nil {
			return AppendResult{}, err
		}
	}

	s.entries[e.TenantID] = append(chain, sealed)
	return AppendResult{ID: sealed.ID, SequenceNumber: seq, HashChain: sealed.HashChain}, nil
}

// Truncate drops entries of tenantID from sequence number seq on. Used to
// emulate a rolled back transaction.
func (s *MemoryStore) Truncate(tenantID id.ID, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.entries[tenantID]
	if int(seq-1) < len(chain) {
		s.entries[tenantID] = chain[:seq-1]
	}
}

func (s *MemoryStore) ListTenants(_ context.Context) ([]id.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]id.ID, 0, len(s.entries))
	for t := range s.entries {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *MemoryStore) ListChain(_ context.Context, tenantID id.ID) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries[tenantID]))
	copy(out, s.entries[tenantID])
	return out, nil
}

// Entries is ListChain without a context, for assertions.
func (s *MemoryStore) Entries(tenantID id.ID) []Entry {
	out, _ := s.ListChain(context.Background(), tenantID)
	return out
}
