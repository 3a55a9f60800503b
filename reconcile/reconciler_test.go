package reconcile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudia/quota-engine/quota"
	"github.com/cloudia/quota-engine/quota/store"
	"github.com/cloudia/quota-engine/reconcile"
	"github.com/cloudia/quota-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func kg(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func testRegister() *quota.Register {
	return quota.NewRegister([]quota.FarmerRecord{
		{ID: "a1", AreaHa: decimal.NewFromInt(1)}, // 800 kg capacity
		{ID: "b2", AreaHa: decimal.NewFromInt(2)}, // 1600 kg capacity
	})
}

func delivery(lot, exporter, farmer string, kgv float64) quota.DeliveryRecord {
	return quota.DeliveryRecord{
		LotNumber:    lot,
		ExporterName: exporter,
		FarmerID:     quota.FarmerID(farmer),
		DeliveredKg:  kg(kgv),
	}
}

// =============================================================================
// DEDUPLICATION
// =============================================================================

func TestDeduplicate_KeepsLastOccurrence(t *testing.T) {
	records := []quota.DeliveryRecord{
		delivery("L1", "ExpCo", "a1", 100),
		delivery("L1", "ExpCo", "b2", 200),
		delivery("L1", "ExpCo", "a1", 150), // revises the first row
	}

	got := reconcile.Deduplicate(records)

	require.Len(t, got, 2)
	assert.Equal(t, quota.FarmerID("a1"), got[0].FarmerID, "first-appearance order preserved")
	assert.True(t, got[0].DeliveredKg.Equal(kg(150)), "later row wins")
	assert.True(t, got[1].DeliveredKg.Equal(kg(200)))
}

// =============================================================================
// SUBMISSION PIPELINE
// =============================================================================

func TestSubmit_ApprovedBatch(t *testing.T) {
	r := reconcile.New(store.NewMemory(), nil)

	res, err := r.Submit(context.Background(), testRegister(), []quota.DeliveryRecord{
		delivery("L1", "ExpCo", "a1", 600),
	})

	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Empty(t, res.UnknownFarmers)
	assert.Equal(t, 1, res.FarmerCount)
	assert.True(t, res.TotalKg.Equal(kg(600)))
	require.Len(t, res.Assessments, 1)
	assert.Equal(t, quota.StatusOK, res.Assessments[0].Status)
	assert.InDelta(t, 75.0, res.Assessments[0].QuotaUsedPct, 1e-9)
}

func TestSubmit_UnknownFarmerBlocksButPersists(t *testing.T) {
	// GIVEN: a delivery for a farmer absent from the register
	// WHEN: the batch is submitted
	// THEN: approval is blocked, the id is named, and the row is still
	//       visible in a subsequent ledger aggregate

	mem := store.NewMemory()
	r := reconcile.New(mem, nil)
	ctx := context.Background()

	res, err := r.Submit(ctx, testRegister(), []quota.DeliveryRecord{
		delivery("L1", "ExpCo", "a1", 100),
		delivery("L1", "ExpCo", "ghost", 50),
	})

	require.NoError(t, err)
	assert.False(t, res.Approved)
	assert.Equal(t, []quota.FarmerID{"ghost"}, res.UnknownFarmers)
	assert.Equal(t, 1, res.FarmerCount, "unknown farmers not counted as approved")

	totals, err := mem.AggregateByFarmer(ctx)
	require.NoError(t, err)
	assert.True(t, totals["ghost"].Equal(kg(50)), "persisted for ledger completeness")
}

func TestSubmit_EmptyBatch(t *testing.T) {
	r := reconcile.New(store.NewMemory(), nil)

	_, err := r.Submit(context.Background(), testRegister(), nil)

	assert.ErrorIs(t, err, quota.ErrEmptyBatch)
}

func TestSubmit_MultipleExportersRejectedBeforePersisting(t *testing.T) {
	mem := store.NewMemory()
	r := reconcile.New(mem, nil)
	ctx := context.Background()

	_, err := r.Submit(ctx, testRegister(), []quota.DeliveryRecord{
		delivery("L1", "ExpCo", "a1", 100),
		delivery("L1", "OtherCo", "a1", 100),
	})

	var expErr *quota.MultipleExportersError
	require.ErrorAs(t, err, &expErr)

	rows, err := mem.ListDeliveries(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows, "ledger untouched on validation failure")
}

func TestSubmit_StoreFailureLeavesLedgerUntouched(t *testing.T) {
	mem := store.NewMemory()
	r := reconcile.New(mem, nil)
	ctx := context.Background()

	// Seed an unrelated scope, then make writes fail.
	_, err := r.Submit(ctx, testRegister(), []quota.DeliveryRecord{
		delivery("L9", "ExpCo", "b2", 300),
	})
	require.NoError(t, err)

	mem.FailWith = errors.New("disk full")
	_, err = r.Submit(ctx, testRegister(), []quota.DeliveryRecord{
		delivery("L1", "ExpCo", "a1", 100),
	})

	require.ErrorIs(t, err, quota.ErrStoreUnavailable)

	mem.FailWith = nil
	totals, err := mem.AggregateByFarmer(ctx)
	require.NoError(t, err)
	assert.True(t, totals["b2"].Equal(kg(300)), "prior scope intact")
	_, seen := totals["a1"]
	assert.False(t, seen, "failed batch committed nothing")
}

func TestSubmit_DeliveredMassMeasuredAgainstGlobalTotal(t *testing.T) {
	// Farmer a1 delivers through two exporters; the second submission
	// must assess a1 against both contributions.
	mem := store.NewMemory()
	r := reconcile.New(mem, nil)
	ctx := context.Background()

	_, err := r.Submit(ctx, testRegister(), []quota.DeliveryRecord{
		delivery("L1", "OtherCo", "a1", 500),
	})
	require.NoError(t, err)

	res, err := r.Submit(ctx, testRegister(), []quota.DeliveryRecord{
		delivery("L2", "ExpCo", "a1", 400),
	})
	require.NoError(t, err)

	require.Len(t, res.Assessments, 1)
	assert.True(t, res.Assessments[0].DeliveredKg.Equal(kg(900)), "500 + 400 across exporters")
	assert.Equal(t, quota.StatusExceeded, res.Assessments[0].Status)
	assert.False(t, res.Approved)
}

// =============================================================================
// END-TO-END SCENARIO (SQLite ledger)
// =============================================================================

func TestSubmit_ResubmissionScenario(t *testing.T) {
	// Register: a1 with 1 ha (800 kg capacity).
	// Batch 1: lot L1, ExpCo, a1 delivers 600 kg -> OK, approved.
	// Batch 2: same scope, a1 now delivers 900 kg -> ledger shows 900
	// (not 1500), 112.5%, EXCEEDED, not approved.

	ledger, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	r := reconcile.New(ledger, nil)
	ctx := context.Background()
	register := testRegister()

	res1, err := r.Submit(ctx, register, []quota.DeliveryRecord{
		delivery("L1", "ExpCo", "a1", 600),
	})
	require.NoError(t, err)
	assert.True(t, res1.Approved)
	assert.Equal(t, quota.StatusOK, res1.Assessments[0].Status)

	res2, err := r.Submit(ctx, register, []quota.DeliveryRecord{
		delivery("L1", "ExpCo", "a1", 900),
	})
	require.NoError(t, err)

	totals, err := ledger.AggregateByFarmer(ctx)
	require.NoError(t, err)
	v, _ := totals["a1"].Float64()
	assert.Equal(t, 900.0, v, "replaced, not accumulated")

	require.Len(t, res2.Assessments, 1)
	assert.InDelta(t, 112.5, res2.Assessments[0].QuotaUsedPct, 1e-9)
	assert.Equal(t, quota.StatusExceeded, res2.Assessments[0].Status)
	assert.False(t, res2.Approved)
}
