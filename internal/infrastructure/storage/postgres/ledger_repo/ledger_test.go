package ledger_repo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replenix/internal/core/apperror"
	"replenix/internal/core/id"
	"replenix/internal/domain/ledger"
)

func testRepo() *LedgerRepo {
	r := NewLedgerRepo(nil)
	r.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }
	return r
}

func testKey() ledger.Key {
	return ledger.Key{TenantID: id.New(), FacilityID: id.New(), PartID: id.New()}
}

func TestSelectForUpdate(t *testing.T) {
	r := testRepo()
	sql, args, err := r.selectByKey(testKey()).Suffix("FOR UPDATE").ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM inventory_ledger WHERE facility_id = $1 AND part_id = $2 AND tenant_id = $3")
	assert.True(t, strings.HasSuffix(sql, "FOR UPDATE"))
	assert.Len(t, args, 3)
	assert.Contains(t, sql, "qty_in_transit")
}

func TestUpdateFieldQuery(t *testing.T) {
	r := testRepo()

	tests := []struct {
		field  ledger.Field
		column string
	}{
		{ledger.FieldOnHand, "qty_on_hand"},
		{ledger.FieldReserved, "qty_reserved"},
		{ledger.FieldInTransit, "qty_in_transit"},
	}
	for _, tt := range tests {
		t.Run(string(tt.field), func(t *testing.T) {
			sql, args, err := r.updateFieldQuery(testKey(), tt.field, 42)
			require.NoError(t, err)
			assert.Contains(t, sql, "UPDATE inventory_ledger SET "+tt.column+" = $1, updated_at = $2")
			assert.Equal(t, int64(42), args[0])
		})
	}
}

func TestUpdateFieldQuery_UnknownField(t *testing.T) {
	_, _, err := testRepo().updateFieldQuery(testKey(), ledger.Field("qty_on_hand; DROP TABLE x"), 1)
	assert.True(t, apperror.IsValidation(err))
}

func TestEnsureQuery(t *testing.T) {
	sql, args, err := testRepo().ensureQuery(testKey())
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO inventory_ledger")
	assert.Contains(t, sql, "ON CONFLICT (tenant_id, facility_id, part_id) DO NOTHING")
	assert.Len(t, args, 11)
}
