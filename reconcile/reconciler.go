/*
Package reconcile orchestrates one delivery submission end to end.

PIPELINE:
  normalize -> deduplicate -> replace scope in ledger -> re-aggregate
  -> assess -> decide

Each submission moves through Received -> Normalized -> Persisted ->
Assessed -> Approved|Rejected. There is no automatic retry: validation
failures are reported for a human to correct the source data, and a
store failure leaves the ledger untouched so the caller can resubmit
the identical batch.

The only ledger-mutating step is the transactional scope replacement,
which makes resubmission of the same (lots, exporter) scope idempotent.
Approval recording is a separate explicit action; see recorder.go.
*/
package reconcile

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cloudia/quota-engine/quota"
)

// Reconciler runs the submission pipeline against a ledger store and a
// farmer register.
type Reconciler struct {
	store quota.LedgerStore
	log   *zap.Logger
}

// New creates a reconciler. A nil logger disables logging.
func New(store quota.LedgerStore, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: store, log: log}
}

// Result is the outcome of one submission, for presentation. It does
// not itself create an approval artifact.
type Result struct {
	Scope          quota.Scope
	Assessments    []quota.Assessment
	UnknownFarmers []quota.FarmerID
	Approved       bool

	// Batch totals, for the approval document.
	FarmerCount int
	TotalKg     decimal.Decimal
}

// Submit reconciles one normalized batch. The register is immutable for
// the duration of the run.
func (r *Reconciler) Submit(ctx context.Context, register *quota.Register, records []quota.DeliveryRecord) (*Result, error) {
	// Scope derivation also rejects empty and mixed-exporter batches,
	// before the ledger is touched.
	scope, err := quota.ScopeOf(records)
	if err != nil {
		return nil, err
	}

	deduped := Deduplicate(records)
	r.log.Info("batch normalized",
		zap.String("exporter", scope.ExporterName),
		zap.Strings("lots", scope.LotNumbers),
		zap.Int("rows", len(records)),
		zap.Int("rows_deduped", len(deduped)))

	if err := r.store.ReplaceScope(ctx, scope, deduped); err != nil {
		return nil, fmt.Errorf("persisting batch: %w", err)
	}

	totals, err := r.store.AggregateByFarmer(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregating ledger: %w", err)
	}

	scopeIDs := make(map[quota.FarmerID]bool, len(deduped))
	totalKg := decimal.Zero
	for _, rec := range deduped {
		scopeIDs[rec.FarmerID] = true
		totalKg = totalKg.Add(rec.DeliveredKg)
	}

	res := &Result{
		Scope:          scope,
		Assessments:    quota.Assess(register, totals, scopeIDs),
		UnknownFarmers: quota.UnknownFarmers(register, scopeIDs),
		FarmerCount:    len(scopeIDs) - countUnknown(register, scopeIDs),
		TotalKg:        totalKg,
	}
	res.Approved = quota.Approved(res.Assessments, res.UnknownFarmers)

	r.log.Info("batch assessed",
		zap.String("scope", scope.Key()),
		zap.Int("farmers", len(scopeIDs)),
		zap.Int("unknown_farmers", len(res.UnknownFarmers)),
		zap.Int("exceeded", len(quota.Exceeded(res.Assessments))),
		zap.String("total_kg", totalKg.String()),
		zap.Bool("approved", res.Approved))

	return res, nil
}

// Deduplicate collapses rows sharing a natural key, keeping the LAST
// occurrence. Order of first appearance is preserved otherwise.
func Deduplicate(records []quota.DeliveryRecord) []quota.DeliveryRecord {
	index := make(map[quota.DeliveryKey]int, len(records))
	out := make([]quota.DeliveryRecord, 0, len(records))
	for _, rec := range records {
		if i, seen := index[rec.Key()]; seen {
			out[i] = rec
			continue
		}
		index[rec.Key()] = len(out)
		out = append(out, rec)
	}
	return out
}

func countUnknown(register *quota.Register, scopeIDs map[quota.FarmerID]bool) int {
	n := 0
	for id := range scopeIDs {
		if !register.Contains(id) {
			n++
		}
	}
	return n
}
