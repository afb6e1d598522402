package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replenix/internal/core/id"
	"replenix/internal/core/tx"
	"replenix/internal/domain/audit"
)

func sealedEntry(t *testing.T, tenant id.ID, seq int64, prev string, newState json.RawMessage) audit.Entry {
	t.Helper()
	e, err := audit.Seal(audit.Entry{
		TenantID:   tenant,
		Action:     "inventory.adjusted",
		EntityType: "inventory_ledger",
		EntityID:   id.New(),
		NewState:   newState,
	}, seq, prev, time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return e
}

func largeSnapshot() json.RawMessage {
	parts := make([]string, 0, 2000)
	for i := range 2000 {
		parts = append(parts, fmt.Sprintf(`"k%04d":%d`, i, i))
	}
	return json.RawMessage("{" + strings.Join(parts, ",") + "}")
}

func TestAuditStore_CompressRoundTrip(t *testing.T) {
	s, err := NewAuditStore(nil)
	require.NoError(t, err)

	tenant := id.New()
	small := sealedEntry(t, tenant, 1, audit.GenesisHash, json.RawMessage(`{"qtyOnHand":5}`))
	big := sealedEntry(t, tenant, 2, small.HashChain, largeSnapshot())
	require.Greater(t, len(big.NewState), defaultCompressThreshold)

	smallRow := s.compress(small)
	assert.Equal(t, CompressionNone, smallRow.CompressionAlgo)
	assert.Nil(t, smallRow.NewStateCompressed)

	bigRow := s.compress(big)
	assert.Equal(t, CompressionZstd, bigRow.CompressionAlgo)
	assert.Nil(t, bigRow.NewState)
	assert.Less(t, len(bigRow.NewStateCompressed), len(big.NewState))

	var restored []audit.Entry
	for _, r := range []auditRow{smallRow, bigRow} {
		e, err := s.decompress(r)
		require.NoError(t, err)
		restored = append(restored, e)
	}
	assert.Equal(t, []byte(big.NewState), []byte(restored[1].NewState))

	n, err := audit.VerifyChain(restored)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAuditStore_DecompressCorrupt(t *testing.T) {
	s, err := NewAuditStore(nil)
	require.NoError(t, err)

	_, err = s.decompress(auditRow{
		CompressionAlgo:    CompressionZstd,
		NewStateCompressed: []byte("not zstd"),
	})
	assert.Error(t, err)
}

func TestAuditStore_AppendRequiresTransaction(t *testing.T) {
	s, err := NewAuditStore(nil)
	require.NoError(t, err)

	_, err = s.Append(context.Background(), audit.Entry{TenantID: id.New()})
	assert.ErrorIs(t, err, tx.ErrNoTransaction)
}

func TestNullJSON(t *testing.T) {
	assert.Nil(t, nullJSON(nil))
	assert.Nil(t, nullJSON(json.RawMessage("null")))
	assert.Equal(t, `{"a":1}`, nullJSON(json.RawMessage(`{"a":1}`)))
}

func TestReplayDefaults(t *testing.T) {
	assert.Equal(t, 200, replayStatus(0))
	assert.Equal(t, 409, replayStatus(409))
	assert.Equal(t, "application/json", replayContentType(""))
	assert.Equal(t, "text/plain", replayContentType("text/plain"))
}
