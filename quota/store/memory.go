// Package store provides LedgerStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cloudia/quota-engine/quota"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	deliveries map[quota.DeliveryKey]decimal.Decimal
	approvals  []quota.ApprovalRecord

	// FailWith, when set, makes every mutating call fail without
	// touching state. Used to test no-partial-commit behavior.
	FailWith error
}

func NewMemory() *Memory {
	return &Memory{deliveries: make(map[quota.DeliveryKey]decimal.Decimal)}
}

func (m *Memory) UpsertDeliveries(_ context.Context, records []quota.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return &quota.StoreError{Op: "upsert deliveries", Err: m.FailWith}
	}
	for _, rec := range records {
		m.deliveries[rec.Key()] = rec.DeliveredKg
	}
	return nil
}

func (m *Memory) ReplaceScope(_ context.Context, scope quota.Scope, records []quota.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return &quota.StoreError{Op: "replace scope", Err: m.FailWith}
	}

	lots := make(map[string]bool, len(scope.LotNumbers))
	for _, lot := range scope.LotNumbers {
		lots[lot] = true
	}
	for key := range m.deliveries {
		if key.ExporterName == scope.ExporterName && lots[key.LotNumber] {
			delete(m.deliveries, key)
		}
	}
	for _, rec := range records {
		m.deliveries[rec.Key()] = rec.DeliveredKg
	}
	return nil
}

func (m *Memory) AggregateByFarmer(_ context.Context) (map[quota.FarmerID]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := make(map[quota.FarmerID]decimal.Decimal)
	for key, kg := range m.deliveries {
		totals[key.FarmerID] = totals[key.FarmerID].Add(kg)
	}
	return totals, nil
}

func (m *Memory) AppendApproval(_ context.Context, rec quota.ApprovalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return &quota.StoreError{Op: "append approval", Err: m.FailWith}
	}
	m.approvals = append(m.approvals, rec)
	return nil
}

func (m *Memory) ListDeliveries(_ context.Context) ([]quota.DeliveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]quota.DeliveryRecord, 0, len(m.deliveries))
	for key, kg := range m.deliveries {
		out = append(out, quota.DeliveryRecord{
			LotNumber:    key.LotNumber,
			ExporterName: key.ExporterName,
			FarmerID:     key.FarmerID,
			DeliveredKg:  kg,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LotNumber != b.LotNumber {
			return a.LotNumber < b.LotNumber
		}
		if a.ExporterName != b.ExporterName {
			return a.ExporterName < b.ExporterName
		}
		return a.FarmerID < b.FarmerID
	})
	return out, nil
}

func (m *Memory) ListApprovals(_ context.Context) ([]quota.ApprovalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]quota.ApprovalRecord, len(m.approvals))
	copy(out, m.approvals)
	return out, nil
}

func (m *Memory) ClearAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return &quota.StoreError{Op: "clear all", Err: m.FailWith}
	}
	m.deliveries = make(map[quota.DeliveryKey]decimal.Decimal)
	m.approvals = nil
	return nil
}
