package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudia/quota-engine/quota"
	"github.com/cloudia/quota-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func delivery(lot, exporter, farmer string, kgv float64) quota.DeliveryRecord {
	return quota.DeliveryRecord{
		LotNumber:    lot,
		ExporterName: exporter,
		FarmerID:     quota.FarmerID(farmer),
		DeliveredKg:  decimal.NewFromFloat(kgv),
	}
}

func total(t *testing.T, store *sqlite.Store, farmer string) float64 {
	t.Helper()
	totals, err := store.AggregateByFarmer(context.Background())
	require.NoError(t, err)
	v, _ := totals[quota.FarmerID(farmer)].Float64()
	return v
}

// =============================================================================
// KEY UNIQUENESS AND REPLACEMENT
// =============================================================================

func TestUpsertDeliveries_ReplacesByNaturalKey(t *testing.T) {
	// GIVEN: a row for (L1, ExpCo, a1)
	// WHEN: a revised mass is written for the same key
	// THEN: the value is replaced, not accumulated

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDeliveries(ctx, []quota.DeliveryRecord{delivery("L1", "ExpCo", "a1", 600)}))
	require.NoError(t, store.UpsertDeliveries(ctx, []quota.DeliveryRecord{delivery("L1", "ExpCo", "a1", 900)}))

	assert.Equal(t, 900.0, total(t, store, "a1"))

	rows, err := store.ListDeliveries(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "at most one row per natural key")
}

func TestAggregateByFarmer_GlobalAcrossLotsAndExporters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDeliveries(ctx, []quota.DeliveryRecord{
		delivery("L1", "ExpCo", "a1", 100),
		delivery("L2", "ExpCo", "a1", 200),
		delivery("L1", "OtherCo", "a1", 50),
		delivery("L1", "ExpCo", "b2", 300),
	}))

	assert.Equal(t, 350.0, total(t, store, "a1"), "summed across lots and exporters")
	assert.Equal(t, 300.0, total(t, store, "b2"))
}

// =============================================================================
// SCOPE REPLACEMENT
// =============================================================================

func TestReplaceScope_IdempotentResubmission(t *testing.T) {
	// GIVEN: a submitted batch for (L1, ExpCo)
	// WHEN: the identical batch is submitted again
	// THEN: aggregates are unchanged

	store := newTestStore(t)
	ctx := context.Background()

	scope := quota.Scope{LotNumbers: []string{"L1"}, ExporterName: "ExpCo"}
	batch := []quota.DeliveryRecord{
		delivery("L1", "ExpCo", "a1", 600),
		delivery("L1", "ExpCo", "b2", 200),
	}

	require.NoError(t, store.ReplaceScope(ctx, scope, batch))
	require.NoError(t, store.ReplaceScope(ctx, scope, batch))

	assert.Equal(t, 600.0, total(t, store, "a1"))
	assert.Equal(t, 200.0, total(t, store, "b2"))
}

func TestReplaceScope_SupersedesPriorContribution(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	scope := quota.Scope{LotNumbers: []string{"L1"}, ExporterName: "ExpCo"}

	require.NoError(t, store.ReplaceScope(ctx, scope, []quota.DeliveryRecord{
		delivery("L1", "ExpCo", "a1", 600),
		delivery("L1", "ExpCo", "b2", 200), // dropped in the resubmission
	}))
	require.NoError(t, store.ReplaceScope(ctx, scope, []quota.DeliveryRecord{
		delivery("L1", "ExpCo", "a1", 900),
	}))

	assert.Equal(t, 900.0, total(t, store, "a1"), "replaced, not accumulated")
	assert.Equal(t, 0.0, total(t, store, "b2"), "rows absent from the resubmission are gone")
}

func TestReplaceScope_LeavesOtherScopesAlone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDeliveries(ctx, []quota.DeliveryRecord{
		delivery("L9", "ExpCo", "a1", 111),   // other lot
		delivery("L1", "OtherCo", "a1", 50),  // other exporter
	}))

	scope := quota.Scope{LotNumbers: []string{"L1"}, ExporterName: "ExpCo"}
	require.NoError(t, store.ReplaceScope(ctx, scope, []quota.DeliveryRecord{
		delivery("L1", "ExpCo", "a1", 600),
	}))

	assert.Equal(t, 761.0, total(t, store, "a1"), "111 + 50 + 600")
}

func TestReplaceScope_MultiLotScope(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	scope := quota.Scope{LotNumbers: []string{"L1", "L2"}, ExporterName: "ExpCo"}
	require.NoError(t, store.ReplaceScope(ctx, scope, []quota.DeliveryRecord{
		delivery("L1", "ExpCo", "a1", 100),
		delivery("L2", "ExpCo", "a1", 200),
	}))
	require.NoError(t, store.ReplaceScope(ctx, scope, []quota.DeliveryRecord{
		delivery("L1", "ExpCo", "a1", 150),
	}))

	assert.Equal(t, 150.0, total(t, store, "a1"), "both lots of the scope were replaced")
}

// =============================================================================
// APPROVAL LOG
// =============================================================================

func TestAppendApproval_AllowsDuplicateContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := quota.ApprovalRecord{
		Timestamp:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		LotNumber:    "L1",
		ExporterName: "ExpCo",
		ApprovedBy:   quota.ApprovedBy,
		FileName:     "approval_L1_ExpCo.txt",
	}

	require.NoError(t, store.AppendApproval(ctx, rec))
	require.NoError(t, store.AppendApproval(ctx, rec))

	approvals, err := store.ListApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, approvals, 2, "approvals are history, not keyed rows")
	assert.Equal(t, "ExpCo", approvals[0].ExporterName)
	assert.Equal(t, rec.Timestamp, approvals[0].Timestamp)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestClearAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDeliveries(ctx, []quota.DeliveryRecord{delivery("L1", "ExpCo", "a1", 1)}))
	require.NoError(t, store.AppendApproval(ctx, quota.ApprovalRecord{
		Timestamp: time.Now(), LotNumber: "L1", ExporterName: "ExpCo",
		ApprovedBy: quota.ApprovedBy, FileName: "f.txt",
	}))

	require.NoError(t, store.ClearAll(ctx))

	rows, err := store.ListDeliveries(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	approvals, err := store.ListApprovals(ctx)
	require.NoError(t, err)
	assert.Empty(t, approvals)
}

func TestListDeliveries_OrderedByNaturalKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDeliveries(ctx, []quota.DeliveryRecord{
		delivery("L2", "ExpCo", "a1", 1),
		delivery("L1", "ExpCo", "b2", 2),
		delivery("L1", "ExpCo", "a1", 3),
	}))

	rows, err := store.ListDeliveries(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, quota.FarmerID("a1"), rows[0].FarmerID)
	assert.Equal(t, "L1", rows[0].LotNumber)
	assert.Equal(t, "L2", rows[2].LotNumber)
}
