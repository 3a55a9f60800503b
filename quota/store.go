/*
store.go - Persistence interface for the delivery ledger

PURPOSE:
  Defines the interface between the reconciliation engine and the
  database. Implementations must keep the natural-key uniqueness
  invariant (at most one delivered mass per key) and make every
  mutating call all-or-nothing.

SCOPE REPLACEMENT:
  ReplaceScope deletes every row owned by the submission's scope and
  inserts the fresh batch in ONE transaction. A crash can therefore
  never lose a scope's rows between delete and insert, and resubmission
  of the same scope is idempotent.

IMPLEMENTATIONS:
  - store/sqlite:    durable SQLite store
  - quota/store:     in-memory store for tests
*/
package quota

import (
	"context"

	"github.com/shopspring/decimal"
)

// LedgerStore persists deliveries and the approval log.
type LedgerStore interface {
	// UpsertDeliveries replaces any existing row sharing each record's
	// natural key and inserts the rest. Atomic per call.
	UpsertDeliveries(ctx context.Context, records []DeliveryRecord) error

	// ReplaceScope atomically deletes all rows belonging to scope and
	// inserts records. records must all belong to scope.
	ReplaceScope(ctx context.Context, scope Scope, records []DeliveryRecord) error

	// AggregateByFarmer sums delivered_kg per farmer across the entire
	// ledger: all exporters, all lots. Quotas are farmer-global.
	AggregateByFarmer(ctx context.Context) (map[FarmerID]decimal.Decimal, error)

	// AppendApproval appends one approval log entry. Duplicate content
	// is allowed; approvals are history, not keyed rows.
	AppendApproval(ctx context.Context, rec ApprovalRecord) error

	// ListDeliveries returns every ledger row, ordered by natural key.
	ListDeliveries(ctx context.Context) ([]DeliveryRecord, error)

	// ListApprovals returns the approval log, oldest first.
	ListApprovals(ctx context.Context) ([]ApprovalRecord, error)

	// ClearAll irreversibly deletes all delivery and approval rows.
	// Administrative use only, behind a two-stage confirmation.
	ClearAll(ctx context.Context) error
}
