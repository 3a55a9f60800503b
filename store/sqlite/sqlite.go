/*
Package sqlite provides the durable SQLite-backed delivery ledger.

PURPOSE:
  Implements quota.LedgerStore on a single local SQLite database. The
  ledger is touched at most once per submission cycle; WAL mode gives
  crash recovery and the single-writer behavior the engine assumes.

KEY TABLES:
  deliveries: keyed delivery masses, PRIMARY KEY (lot, exporter, farmer)
  approvals:  append-only approval log

ATOMICITY:
  Every mutating method runs inside one database transaction. In
  particular ReplaceScope performs delete-then-insert in a single
  transaction so a crash cannot drop a scope's rows between the two.

CONCURRENCY:
  Uses sync.RWMutex. Concurrent submissions for different scopes are
  serialized here; concurrent submissions for the SAME scope are
  last-commit-wins and unsupported.

USAGE:
  ledger, err := sqlite.New("./data/quota.db")
  if err != nil {
      log.Fatal(err)
  }
  defer ledger.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/cloudia/quota-engine/quota"
)

// Store implements quota.LedgerStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite ledger at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Access is serialized by the store mutex; a single connection also
	// keeps ":memory:" databases coherent across the pool.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Delivery ledger: one mass per (lot, exporter, farmer)
	CREATE TABLE IF NOT EXISTS deliveries (
		lot_number TEXT NOT NULL,
		exporter_name TEXT NOT NULL,
		farmer_id TEXT NOT NULL,
		delivered_kg REAL NOT NULL,
		PRIMARY KEY (lot_number, exporter_name, farmer_id)
	);

	-- Farmer-global aggregation is the hot query
	CREATE INDEX IF NOT EXISTS idx_deliveries_farmer
		ON deliveries(farmer_id);

	-- Scope replacement deletes by (lot, exporter)
	CREATE INDEX IF NOT EXISTS idx_deliveries_scope
		ON deliveries(lot_number, exporter_name);

	-- Approval log (append-only)
	CREATE TABLE IF NOT EXISTS approvals (
		timestamp TEXT NOT NULL,
		lot_number TEXT NOT NULL,
		exporter_name TEXT NOT NULL,
		approved_by TEXT NOT NULL,
		file_name TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DELIVERY LEDGER (quota.LedgerStore interface)
// =============================================================================

// UpsertDeliveries writes records, replacing any row that shares a
// natural key. All rows commit together or none.
func (s *Store) UpsertDeliveries(ctx context.Context, records []quota.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &quota.StoreError{Op: "upsert deliveries", Err: err}
	}
	defer tx.Rollback()

	if err := upsertTx(ctx, tx, records); err != nil {
		return &quota.StoreError{Op: "upsert deliveries", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &quota.StoreError{Op: "upsert deliveries", Err: err}
	}
	return nil
}

// ReplaceScope deletes every row owned by scope and inserts records,
// in one transaction. Resubmitting a scope is therefore idempotent.
func (s *Store) ReplaceScope(ctx context.Context, scope quota.Scope, records []quota.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &quota.StoreError{Op: "replace scope", Err: err}
	}
	defer tx.Rollback()

	for _, lot := range scope.LotNumbers {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM deliveries WHERE lot_number = ? AND exporter_name = ?",
			lot, scope.ExporterName,
		); err != nil {
			return &quota.StoreError{Op: "replace scope", Err: err}
		}
	}

	if err := upsertTx(ctx, tx, records); err != nil {
		return &quota.StoreError{Op: "replace scope", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &quota.StoreError{Op: "replace scope", Err: err}
	}
	return nil
}

func upsertTx(ctx context.Context, tx *sql.Tx, records []quota.DeliveryRecord) error {
	query := `
		INSERT INTO deliveries (lot_number, exporter_name, farmer_id, delivered_kg)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(lot_number, exporter_name, farmer_id) DO UPDATE SET
			delivered_kg = excluded.delivered_kg
	`

	for _, rec := range records {
		kg, _ := rec.DeliveredKg.Float64()
		if _, err := tx.ExecContext(ctx, query,
			rec.LotNumber, rec.ExporterName, string(rec.FarmerID), kg,
		); err != nil {
			return fmt.Errorf("failed to write delivery %s/%s/%s: %w",
				rec.LotNumber, rec.ExporterName, rec.FarmerID, err)
		}
	}
	return nil
}

// AggregateByFarmer sums delivered_kg per farmer across the whole
// ledger.
func (s *Store) AggregateByFarmer(ctx context.Context) (map[quota.FarmerID]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT farmer_id, SUM(delivered_kg)
		FROM deliveries
		GROUP BY farmer_id
	`)
	if err != nil {
		return nil, &quota.StoreError{Op: "aggregate by farmer", Err: err}
	}
	defer rows.Close()

	totals := make(map[quota.FarmerID]decimal.Decimal)
	for rows.Next() {
		var id string
		var kg float64
		if err := rows.Scan(&id, &kg); err != nil {
			return nil, &quota.StoreError{Op: "aggregate by farmer", Err: err}
		}
		totals[quota.FarmerID(id)] = decimal.NewFromFloat(kg)
	}
	if err := rows.Err(); err != nil {
		return nil, &quota.StoreError{Op: "aggregate by farmer", Err: err}
	}
	return totals, nil
}

// ListDeliveries returns every ledger row ordered by natural key.
func (s *Store) ListDeliveries(ctx context.Context) ([]quota.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT lot_number, exporter_name, farmer_id, delivered_kg
		FROM deliveries
		ORDER BY lot_number, exporter_name, farmer_id
	`)
	if err != nil {
		return nil, &quota.StoreError{Op: "list deliveries", Err: err}
	}
	defer rows.Close()

	var records []quota.DeliveryRecord
	for rows.Next() {
		var rec quota.DeliveryRecord
		var farmerID string
		var kg float64
		if err := rows.Scan(&rec.LotNumber, &rec.ExporterName, &farmerID, &kg); err != nil {
			return nil, &quota.StoreError{Op: "list deliveries", Err: err}
		}
		rec.FarmerID = quota.FarmerID(farmerID)
		rec.DeliveredKg = decimal.NewFromFloat(kg)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// APPROVAL LOG
// =============================================================================

// AppendApproval appends one approval row. Duplicate content is fine;
// the log is history, not a keyed table.
func (s *Store) AppendApproval(ctx context.Context, rec quota.ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (timestamp, lot_number, exporter_name, approved_by, file_name)
		VALUES (?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.LotNumber, rec.ExporterName, rec.ApprovedBy, rec.FileName,
	)
	if err != nil {
		return &quota.StoreError{Op: "append approval", Err: err}
	}
	return nil
}

// ListApprovals returns the approval log, oldest first.
func (s *Store) ListApprovals(ctx context.Context) ([]quota.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, lot_number, exporter_name, approved_by, file_name
		FROM approvals
		ORDER BY timestamp ASC, rowid ASC
	`)
	if err != nil {
		return nil, &quota.StoreError{Op: "list approvals", Err: err}
	}
	defer rows.Close()

	var records []quota.ApprovalRecord
	for rows.Next() {
		var rec quota.ApprovalRecord
		var ts string
		if err := rows.Scan(&ts, &rec.LotNumber, &rec.ExporterName, &rec.ApprovedBy, &rec.FileName); err != nil {
			return nil, &quota.StoreError{Op: "list approvals", Err: err}
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339, ts)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// ADMINISTRATIVE
// =============================================================================

// ClearAll deletes all delivery and approval rows in one transaction.
// Irreversible; callers gate this behind a two-stage confirmation.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &quota.StoreError{Op: "clear all", Err: err}
	}
	defer tx.Rollback()

	for _, table := range []string{"deliveries", "approvals"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return &quota.StoreError{Op: "clear all", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &quota.StoreError{Op: "clear all", Err: err}
	}
	return nil
}
