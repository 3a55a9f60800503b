/*
Package quota provides the core delivery reconciliation and quota
accounting engine.

PURPOSE:
  This package contains the domain types and pure algorithms for
  accounting farmer crop deliveries against area-based quotas. It knows
  nothing about spreadsheets, HTTP, or SQLite: inputs are canonical
  records, outputs are assessments and an approval decision.

KEY CONCEPTS IN THIS FILE (types.go):
  - FarmerRecord:   A registered farmer and their cultivated area
  - DeliveryRecord: One delivery row, keyed by (lot, exporter, farmer)
  - Scope:          The (lot numbers, exporter) pair a batch belongs to
  - Assessment:     Computed quota consumption and status per farmer
  - ApprovalRecord: Append-only audit entry for an approved batch

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for masses and percentages so the
     80% and 100% status boundaries compare exactly
  2. Canonical identifiers: farmer IDs are lower-cased and trimmed
     before they enter this package
  3. Auditability: approvals are log entries, never mutated

SEE ALSO:
  - engine.go: Assessment and approval computation
  - store.go:  LedgerStore persistence interface
  - errors.go: Error taxonomy
*/
package quota

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// QuotaPerHa is the delivery capacity granted per hectare of
// registered area, in kilograms.
var QuotaPerHa = decimal.NewFromInt(800)

// ApprovedBy is the fixed system identity recorded on approvals.
const ApprovedBy = "CloudIA"

// =============================================================================
// IDENTIFIERS
// =============================================================================

// FarmerID is a canonical farmer identifier: lower-cased, trimmed,
// valid UTF-8. The adapter package produces canonical IDs.
type FarmerID string

// =============================================================================
// FARMER REGISTER
// =============================================================================

// FarmerRecord is one entry of the farmer register.
type FarmerRecord struct {
	ID     FarmerID
	AreaHa decimal.Decimal
}

// MaxQuotaKg returns the delivery capacity for this farmer.
func (f FarmerRecord) MaxQuotaKg() decimal.Decimal {
	return f.AreaHa.Mul(QuotaPerHa)
}

// Register is the set of known farmers, loaded once per session and
// immutable during a reconciliation run.
type Register struct {
	farmers map[FarmerID]FarmerRecord
	order   []FarmerID
}

// NewRegister builds a register from records. A later record with the
// same ID replaces the earlier one.
func NewRegister(records []FarmerRecord) *Register {
	r := &Register{farmers: make(map[FarmerID]FarmerRecord, len(records))}
	for _, rec := range records {
		if _, seen := r.farmers[rec.ID]; !seen {
			r.order = append(r.order, rec.ID)
		}
		r.farmers[rec.ID] = rec
	}
	return r
}

// Lookup returns the record for id, if registered.
func (r *Register) Lookup(id FarmerID) (FarmerRecord, bool) {
	rec, ok := r.farmers[id]
	return rec, ok
}

// Contains reports whether id is registered.
func (r *Register) Contains(id FarmerID) bool {
	_, ok := r.farmers[id]
	return ok
}

// Len returns the number of registered farmers.
func (r *Register) Len() int { return len(r.order) }

// All returns the records in load order.
func (r *Register) All() []FarmerRecord {
	out := make([]FarmerRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.farmers[id])
	}
	return out
}

// IDs returns all registered IDs in load order.
func (r *Register) IDs() []FarmerID {
	out := make([]FarmerID, len(r.order))
	copy(out, r.order)
	return out
}

// =============================================================================
// DELIVERIES
// =============================================================================

// DeliveryRecord is one normalized delivery row.
type DeliveryRecord struct {
	LotNumber    string
	ExporterName string
	FarmerID     FarmerID
	DeliveredKg  decimal.Decimal
}

// DeliveryKey is the natural key of a delivery. The ledger holds at
// most one delivered mass per key.
type DeliveryKey struct {
	LotNumber    string
	ExporterName string
	FarmerID     FarmerID
}

// Key returns the natural key of the record.
func (d DeliveryRecord) Key() DeliveryKey {
	return DeliveryKey{
		LotNumber:    d.LotNumber,
		ExporterName: d.ExporterName,
		FarmerID:     d.FarmerID,
	}
}

// =============================================================================
// SCOPE - the (lots, exporter) pair a submission replaces
// =============================================================================

// Scope identifies which slice of the ledger a batch owns. Resubmitting
// a batch for the same scope fully supersedes the earlier contribution.
type Scope struct {
	LotNumbers   []string // sorted, unique, non-empty
	ExporterName string
}

// JoinedLots returns the lot numbers as a single display string.
func (s Scope) JoinedLots() string {
	return strings.Join(s.LotNumbers, ", ")
}

// Key returns a stable string identity for the scope.
func (s Scope) Key() string {
	return strings.Join(s.LotNumbers, ",") + "|" + s.ExporterName
}

// ScopeOf derives the scope from a batch of deliveries. It fails if
// the batch is empty or mixes exporters.
func ScopeOf(records []DeliveryRecord) (Scope, error) {
	if len(records) == 0 {
		return Scope{}, ErrEmptyBatch
	}

	exporters := make(map[string]bool)
	lots := make(map[string]bool)
	for _, rec := range records {
		exporters[rec.ExporterName] = true
		lots[rec.LotNumber] = true
	}

	if len(exporters) > 1 {
		names := make([]string, 0, len(exporters))
		for name := range exporters {
			names = append(names, name)
		}
		sort.Strings(names)
		return Scope{}, &MultipleExportersError{Exporters: names}
	}

	scope := Scope{ExporterName: records[0].ExporterName}
	for lot := range lots {
		scope.LotNumbers = append(scope.LotNumbers, lot)
	}
	sort.Strings(scope.LotNumbers)
	return scope, nil
}

// =============================================================================
// ASSESSMENT - computed quota state per farmer (never persisted)
// =============================================================================

// Status classifies how much of a farmer's quota is consumed.
type Status string

const (
	StatusOK       Status = "OK"       // <= 80%
	StatusWarning  Status = "WARNING"  // (80%, 100%]
	StatusExceeded Status = "EXCEEDED" // > 100%
)

// Assessment is one farmer's quota consumption, recomputed from the
// live ledger aggregate on every submission.
type Assessment struct {
	FarmerID    FarmerID
	AreaHa      decimal.Decimal
	MaxQuotaKg  decimal.Decimal
	DeliveredKg decimal.Decimal

	// QuotaUsedPct is DeliveredKg / MaxQuotaKg * 100. It is +Inf for a
	// zero-area farmer with a positive delivered mass.
	QuotaUsedPct float64

	Status Status
}

// Unbounded reports whether the percentage is +Inf (zero capacity with
// deliveries on record).
func (a Assessment) Unbounded() bool {
	return math.IsInf(a.QuotaUsedPct, 1)
}

// =============================================================================
// APPROVALS - append-only audit log entries
// =============================================================================

// ApprovalRecord is one row of the approval log. Records are only ever
// appended; the administrative wipe is the sole way to remove them.
type ApprovalRecord struct {
	Timestamp    time.Time
	LotNumber    string // joined lot numbers
	ExporterName string
	ApprovedBy   string
	FileName     string
}
