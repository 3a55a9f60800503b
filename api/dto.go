/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

NOTE ON PERCENTAGES:
  quota_used_pct is serialized as a string because a zero-area farmer
  with deliveries has an unbounded percentage ("inf"), which JSON
  numbers cannot carry.
*/
package api

import (
	"strconv"
	"time"

	"github.com/cloudia/quota-engine/quota"
	"github.com/cloudia/quota-engine/reconcile"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// AssessmentDTO is one farmer's quota state in API responses.
type AssessmentDTO struct {
	FarmerID     string  `json:"farmer_id"`
	AreaHa       float64 `json:"area_ha"`
	MaxQuotaKg   float64 `json:"max_quota_kg"`
	DeliveredKg  float64 `json:"delivered_kg"`
	QuotaUsedPct string  `json:"quota_used_pct"`
	Status       string  `json:"status"`
}

// ReconciliationDTO is the outcome of one batch submission.
type ReconciliationDTO struct {
	LotNumbers     []string        `json:"lot_numbers"`
	ExporterName   string          `json:"exporter_name"`
	Assessments    []AssessmentDTO `json:"assessments"`
	UnknownFarmers []string        `json:"unknown_farmers"`
	Approved       bool            `json:"approved"`
	FarmerCount    int             `json:"farmer_count"`
	TotalKg        float64         `json:"total_kg"`
}

// ApproveRequest asks for an approval artifact for an assessed scope.
type ApproveRequest struct {
	LotNumbers   []string `json:"lot_numbers"`
	ExporterName string   `json:"exporter_name"`
}

// ApprovalDTO is one row of the approval log.
type ApprovalDTO struct {
	Timestamp    string `json:"timestamp"`
	LotNumber    string `json:"lot_number"`
	ExporterName string `json:"exporter_name"`
	ApprovedBy   string `json:"approved_by"`
	FileName     string `json:"file_name"`
}

// ArtifactDTO points at a written approval document.
type ArtifactDTO struct {
	FileName string `json:"file_name"`
}

// DeliveryDTO is one ledger row (admin view).
type DeliveryDTO struct {
	LotNumber    string  `json:"lot_number"`
	ExporterName string  `json:"exporter_name"`
	FarmerID     string  `json:"farmer_id"`
	DeliveredKg  float64 `json:"delivered_kg"`
}

// RegisterDTO reports a loaded farmer register.
type RegisterDTO struct {
	FarmerCount int `json:"farmer_count"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toAssessmentDTO(a quota.Assessment) AssessmentDTO {
	area, _ := a.AreaHa.Float64()
	max, _ := a.MaxQuotaKg.Float64()
	delivered, _ := a.DeliveredKg.Float64()

	pct := "inf"
	if !a.Unbounded() {
		pct = strconv.FormatFloat(a.QuotaUsedPct, 'f', 2, 64)
	}

	return AssessmentDTO{
		FarmerID:     string(a.FarmerID),
		AreaHa:       area,
		MaxQuotaKg:   max,
		DeliveredKg:  delivered,
		QuotaUsedPct: pct,
		Status:       string(a.Status),
	}
}

func toAssessmentDTOs(assessments []quota.Assessment) []AssessmentDTO {
	dtos := make([]AssessmentDTO, len(assessments))
	for i, a := range assessments {
		dtos[i] = toAssessmentDTO(a)
	}
	return dtos
}

func toReconciliationDTO(res *reconcile.Result) ReconciliationDTO {
	unknown := make([]string, len(res.UnknownFarmers))
	for i, id := range res.UnknownFarmers {
		unknown[i] = string(id)
	}
	total, _ := res.TotalKg.Float64()

	return ReconciliationDTO{
		LotNumbers:     res.Scope.LotNumbers,
		ExporterName:   res.Scope.ExporterName,
		Assessments:    toAssessmentDTOs(res.Assessments),
		UnknownFarmers: unknown,
		Approved:       res.Approved,
		FarmerCount:    res.FarmerCount,
		TotalKg:        total,
	}
}

func toApprovalDTO(rec quota.ApprovalRecord) ApprovalDTO {
	return ApprovalDTO{
		Timestamp:    rec.Timestamp.Format(time.RFC3339),
		LotNumber:    rec.LotNumber,
		ExporterName: rec.ExporterName,
		ApprovedBy:   rec.ApprovedBy,
		FileName:     rec.FileName,
	}
}

func toDeliveryDTO(rec quota.DeliveryRecord) DeliveryDTO {
	kg, _ := rec.DeliveredKg.Float64()
	return DeliveryDTO{
		LotNumber:    rec.LotNumber,
		ExporterName: rec.ExporterName,
		FarmerID:     string(rec.FarmerID),
		DeliveredKg:  kg,
	}
}
