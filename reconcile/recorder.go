/*
recorder.go - Approval artifact and log writer

Recording is the only step that produces durable evidence of approval:
one artifact file plus one row in the approval log. The recorder trusts
the caller's decision point (a Result with Approved=true observed just
before the call) and does not re-validate, but it logs the totals that
justified the approval so the decision is auditable.

Artifact names are deterministic for a scope; resubmitting an approved
batch overwrites the previous artifact rather than accumulating copies.
*/
package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cloudia/quota-engine/quota"
)

// complianceStatement is printed verbatim on every approval document.
const complianceStatement = "All farmer IDs are valid and within quota limits."

// Recorder writes approval artifacts and appends to the approval log.
type Recorder struct {
	store quota.LedgerStore
	dir   string
	log   *zap.Logger
	now   func() time.Time
}

// NewRecorder creates a recorder writing artifacts under dir.
func NewRecorder(store quota.LedgerStore, dir string, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, dir: dir, log: log, now: time.Now}
}

// ArtifactRef points at a written approval document.
type ArtifactRef struct {
	FileName string
	Path     string
}

// RecordApproval writes the approval document for res and appends an
// ApprovalRecord to the ledger. res must have passed validation.
func (r *Recorder) RecordApproval(ctx context.Context, res *Result) (ArtifactRef, error) {
	if res == nil || !res.Approved {
		return ArtifactRef{}, quota.ErrNotApproved
	}

	now := r.now()
	name := ArtifactName(res.Scope)
	path := filepath.Join(r.dir, name)

	doc := buildDocument(now, res)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return ArtifactRef{}, fmt.Errorf("writing approval artifact: %w", err)
	}

	rec := quota.ApprovalRecord{
		Timestamp:    now,
		LotNumber:    res.Scope.JoinedLots(),
		ExporterName: res.Scope.ExporterName,
		ApprovedBy:   quota.ApprovedBy,
		FileName:     name,
	}
	if err := r.store.AppendApproval(ctx, rec); err != nil {
		return ArtifactRef{}, fmt.Errorf("recording approval: %w", err)
	}

	// The totals that justified this approval, for the audit trail.
	r.log.Info("approval recorded",
		zap.String("lots", rec.LotNumber),
		zap.String("exporter", rec.ExporterName),
		zap.Int("farmer_count", res.FarmerCount),
		zap.String("total_kg", res.TotalKg.String()),
		zap.String("file", name))

	return ArtifactRef{FileName: name, Path: path}, nil
}

// ArtifactName derives the deterministic document name for a scope:
// approval_<lot(s)>_<exporter>.txt. Collisions for the same scope
// overwrite on resubmit.
func ArtifactName(scope quota.Scope) string {
	lots := make([]string, len(scope.LotNumbers))
	for i, lot := range scope.LotNumbers {
		lots[i] = fileSafe(lot)
	}
	return fmt.Sprintf("approval_%s_%s.txt",
		strings.Join(lots, "-"), fileSafe(scope.ExporterName))
}

// fileSafe replaces path separators and whitespace so a lot number or
// exporter name cannot escape the artifact directory.
func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ', '\t':
			return '-'
		default:
			return r
		}
	}, s)
}

func buildDocument(now time.Time, res *Result) string {
	var b strings.Builder
	b.WriteString("Delivery Approval Confirmation\n\n")
	fmt.Fprintf(&b, "Date: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Lot Number: %s\n", res.Scope.JoinedLots())
	fmt.Fprintf(&b, "Exporter: %s\n", res.Scope.ExporterName)
	fmt.Fprintf(&b, "Approved Farmers: %d\n", res.FarmerCount)
	fmt.Fprintf(&b, "Total Delivered (kg): %s\n", res.TotalKg.String())
	fmt.Fprintf(&b, "Approved by %s\n\n", quota.ApprovedBy)
	b.WriteString(complianceStatement + "\n")
	return b.String()
}
