package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "replenix/internal/core/context"
	"replenix/internal/core/id"
)

func appendN(t *testing.T, s *MemoryStore, tenant id.ID, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		_, err := Record(ctx, s, Change{
			TenantID:   tenant,
			Action:     ActionInventoryAdjusted,
			EntityType: EntityLedger,
			EntityID:   id.New(),
			Previous:   map[string]any{"qtyOnHand": i},
			Next:       map[string]any{"qtyOnHand": i + 1},
			Metadata:   map[string]any{"source": "test", "step": i},
		})
		require.NoError(t, err)
	}
}

func TestAppend_SequenceAndLinking(t *testing.T) {
	s := NewMemoryStore()
	tenant := id.New()
	other := id.New()

	appendN(t, s, tenant, 3)
	appendN(t, s, other, 1)

	entries := s.Entries(tenant)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.SequenceNumber)
		assert.Len(t, e.HashChain, 64)
	}
	assert.NotEqual(t, entries[0].HashChain, entries[1].HashChain)
	assert.Equal(t, int64(1), s.Entries(other)[0].SequenceNumber)
}

func TestVerifyChain_Valid(t *testing.T) {
	s := NewMemoryStore()
	tenant := id.New()
	appendN(t, s, tenant, 5)

	n, err := VerifyChain(s.Entries(tenant))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestVerifyChain_LastHashReproduced(t *testing.T) {
	s := NewMemoryStore()
	tenant := id.New()
	appendN(t, s, tenant, 4)
	entries := s.Entries(tenant)

	prev := GenesisHash
	for _, e := range entries {
		h, err := ComputeHash(e.SequenceNumber, prev, e)
		require.NoError(t, err)
		prev = h
	}
	assert.Equal(t, entries[len(entries)-1].HashChain, prev)
}

func TestVerifyChain_DeletionDetected(t *testing.T) {
	s := NewMemoryStore()
	tenant := id.New()
	appendN(t, s, tenant, 5)
	entries := s.Entries(tenant)

	for del := 0; del < len(entries)-1; del++ {
		tampered := append(append([]Entry{}, entries[:del]...), entries[del+1:]...)
		n, err := VerifyChain(tampered)
		require.Error(t, err)
		assert.Equal(t, del, n, "entries after the deleted one must not verify")

		var cb *ChainBreakError
		require.ErrorAs(t, err, &cb)
		assert.Equal(t, BreakSequenceGap, cb.Reason)
	}
}

func TestVerifyChain_RenumberedDeletionStillDetected(t *testing.T) {
	s := NewMemoryStore()
	tenant := id.New()
	appendN(t, s, tenant, 4)
	entries := s.Entries(tenant)

	// Drop entry 2 and close the sequence gap.
	tampered := []Entry{entries[0], entries[2], entries[3]}
	tampered[1].SequenceNumber = 2
	tampered[2].SequenceNumber = 3

	n, err := VerifyChain(tampered)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	var cb *ChainBreakError
	require.ErrorAs(t, err, &cb)
	assert.Equal(t, BreakHashMismatch, cb.Reason)
}

func TestVerifyChain_TamperDetected(t *testing.T) {
	s := NewMemoryStore()
	tenant := id.New()
	appendN(t, s, tenant, 3)
	entries := s.Entries(tenant)

	entries[1].NewState = json.RawMessage(`{"qtyOnHand":999}`)

	n, err := VerifyChain(entries)
	assert.True(t, IsChainBreak(err))
	assert.Equal(t, 1, n)
}

func TestCanonicalJSON_KeyOrderAndWhitespace(t *testing.T) {
	a, err := CanonicalJSON(json.RawMessage(`{"b": 1, "a": {"y": 2, "x": 12345678901234567}}`))
	require.NoError(t, err)
	b, err := CanonicalJSON(json.RawMessage(`{"a":{"x":12345678901234567,"y":2},"b":1}`))
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
	assert.Equal(t, `{"a":{"x":12345678901234567,"y":2},"b":1}`, string(a))

	empty, err := CanonicalJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(empty))
}

func TestComputeHash_StableAcrossStoreRoundTrip(t *testing.T) {
	e := Entry{
		ID:         id.New(),
		TenantID:   id.New(),
		Action:     ActionReceiptCreated,
		EntityType: EntityReceipt,
		EntityID:   id.New(),
		NewState:   json.RawMessage(`{"status":"complete","receiptNumber":"RCV-20261017-0001"}`),
		CreatedAt:  time.Date(2026, 10, 17, 9, 30, 0, 123456789, time.UTC),
	}
	sealed, err := Seal(e, 1, GenesisHash, time.Now())
	require.NoError(t, err)

	// A JSONB column returns keys reordered and a timestamp at microsecond precision.
	loaded := sealed
	loaded.NewState = json.RawMessage(`{"receiptNumber": "RCV-20261017-0001", "status": "complete"}`)
	loaded.CreatedAt = sealed.CreatedAt.In(time.FixedZone("x", 3600))

	n, err := VerifyChain([]Entry{loaded})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewEntry_RequestMeta(t *testing.T) {
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{
		IPAddress: "10.0.0.7",
		UserAgent: "scanner/2.1",
	})
	actor := id.New()

	e, err := NewEntry(ctx, Change{
		TenantID: id.New(),
		ActorID:  &actor,
		Action:   ActionExceptionResolved,
		Next:     map[string]string{"status": "resolved"},
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.7", e.IPAddress)
	assert.Equal(t, "scanner/2.1", e.UserAgent)
	assert.Nil(t, e.PreviousState)
	assert.JSONEq(t, `{"status":"resolved"}`, string(e.NewState))
}

func TestVerifier_VerifyAll(t *testing.T) {
	s := NewMemoryStore()
	good, bad := id.New(), id.New()
	appendN(t, s, good, 2)
	appendN(t, s, bad, 3)

	s.mu.Lock()
	s.entries[bad][2].Action = "forged"
	s.mu.Unlock()

	reports, err := NewVerifier(s).VerifyAll(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)

	byTenant := map[id.ID]TenantReport{}
	for _, r := range reports {
		byTenant[r.TenantID] = r
	}
	assert.Nil(t, byTenant[good].Break)
	assert.Equal(t, 2, byTenant[good].Verified)
	require.NotNil(t, byTenant[bad].Break)
	assert.Equal(t, int64(3), byTenant[bad].Break.SequenceNumber)
	assert.Equal(t, 2, byTenant[bad].Verified)
}
