/*
engine.go - Quota consumption assessment

PURPOSE:
  Pure functions that turn the farmer register, the ledger-wide
  delivered totals, and the set of farmers touched by a submission into
  per-farmer assessments and a global approval decision.

INVARIANTS:
  - Assessments are restricted to the submission's farmers but computed
    against the GLOBAL ledger totals, so a farmer delivering through
    several exporters is measured across all of them.
  - Percentages are never cached: callers pass freshly aggregated totals.
  - A zero-area farmer with any positive delivered mass is EXCEEDED,
    with QuotaUsedPct = +Inf; no division fault.

STATUS BOUNDARIES (inclusive as stated):
  80.00% exactly  -> OK
  100.00% exactly -> WARNING
  above 100%      -> EXCEEDED
*/
package quota

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	pctOK      = decimal.NewFromInt(80)
	pctWarning = decimal.NewFromInt(100)
	pctScale   = decimal.NewFromInt(100)
)

// Assess computes the quota consumption of every registered farmer in
// scopeIDs. Farmers absent from the register are skipped here; collect
// them with UnknownFarmers.
func Assess(register *Register, ledgerTotals map[FarmerID]decimal.Decimal, scopeIDs map[FarmerID]bool) []Assessment {
	ids := make([]FarmerID, 0, len(scopeIDs))
	for id := range scopeIDs {
		if register.Contains(id) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	assessments := make([]Assessment, 0, len(ids))
	for _, id := range ids {
		farmer, _ := register.Lookup(id)
		assessments = append(assessments, assessOne(farmer, ledgerTotals[id]))
	}
	return assessments
}

func assessOne(farmer FarmerRecord, delivered decimal.Decimal) Assessment {
	a := Assessment{
		FarmerID:    farmer.ID,
		AreaHa:      farmer.AreaHa,
		MaxQuotaKg:  farmer.MaxQuotaKg(),
		DeliveredKg: delivered,
	}

	if a.MaxQuotaKg.IsZero() {
		if delivered.IsPositive() {
			a.QuotaUsedPct = math.Inf(1)
			a.Status = StatusExceeded
		} else {
			a.QuotaUsedPct = 0
			a.Status = StatusOK
		}
		return a
	}

	pct := delivered.Div(a.MaxQuotaKg).Mul(pctScale)
	a.QuotaUsedPct, _ = pct.Float64()

	switch {
	case pct.LessThanOrEqual(pctOK):
		a.Status = StatusOK
	case pct.LessThanOrEqual(pctWarning):
		a.Status = StatusWarning
	default:
		a.Status = StatusExceeded
	}
	return a
}

// UnknownFarmers returns the IDs in scopeIDs that are absent from the
// register, sorted. Unknown farmers block approval but their deliveries
// are still persisted for ledger completeness.
func UnknownFarmers(register *Register, scopeIDs map[FarmerID]bool) []FarmerID {
	var unknown []FarmerID
	for id := range scopeIDs {
		if !register.Contains(id) {
			unknown = append(unknown, id)
		}
	}
	sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })
	return unknown
}

// Approved is the global approval predicate: every delivering farmer is
// registered and nobody exceeds capacity. WARNING does not block.
func Approved(assessments []Assessment, unknown []FarmerID) bool {
	if len(unknown) > 0 {
		return false
	}
	for _, a := range assessments {
		if a.Status == StatusExceeded {
			return false
		}
	}
	return true
}

// Exceeded returns the subset of assessments over capacity, for
// reporting which farmer IDs blocked approval.
func Exceeded(assessments []Assessment) []Assessment {
	var out []Assessment
	for _, a := range assessments {
		if a.Status == StatusExceeded {
			out = append(out, a)
		}
	}
	return out
}
