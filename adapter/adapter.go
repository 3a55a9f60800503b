/*
Package adapter maps heterogeneous tabular delivery sources into
canonical records.

PURPOSE:
  Spreadsheets arrive with localized, inconsistently cased column names
  ("N° du lot", "Poids Net", "Coode Producteur"). This package resolves
  them against a declarative alias table, sanitizes text fields, and
  yields quota.DeliveryRecord / quota.FarmerRecord sequences. It is a
  pure transform: errors are returned, nothing is ever half-applied.

SANITIZATION:
  - bytes that are not valid UTF-8 are dropped
  - whitespace is trimmed
  - identifiers (farmer IDs) are additionally lower-cased

ALIAS TABLES:
  New localizations extend the alias tables; the engine only ever sees
  canonical field names.
*/
package adapter

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cloudia/quota-engine/quota"
)

// Canonical field names.
const (
	FieldFarmerID    = "farmer_id"
	FieldDeliveredKg = "delivered_kg"
	FieldLotNumber   = "lot_number"
	FieldAreaHa      = "area_ha"
)

// Table is a raw tabular source: a header row plus data rows. Produced
// by the XLSX and CSV readers; rows may be ragged.
type Table struct {
	Columns []string
	Rows    [][]string
}

// AliasTable maps canonical field names to the column headings that may
// carry them. Matching is case-insensitive after sanitization.
type AliasTable map[string][]string

// DeliveryAliases resolves delivery source columns.
var DeliveryAliases = AliasTable{
	FieldFarmerID:    {"farmer_id", "coode producteur", "code producteur", "producteur"},
	FieldDeliveredKg: {"delivered_kg", "poids net", "poids_net", "net weight"},
	FieldLotNumber:   {"lot_number", "lot", "n° du lot", "numero du lot", "no du lot"},
}

// FarmerAliases resolves farmer register columns.
var FarmerAliases = AliasTable{
	FieldFarmerID: {"farmer_id", "coode producteur", "code producteur", "producteur"},
	FieldAreaHa:   {"area_ha", "superficie", "superficie_ha", "surface (ha)"},
}

// =============================================================================
// COLUMN RESOLUTION
// =============================================================================

// resolveColumns maps each required canonical field to a column index.
// Extra columns are ignored. Missing fields are reported together in a
// single SchemaError so the user fixes the file once.
func resolveColumns(t Table, aliases AliasTable, required []string, source string) (map[string]int, error) {
	byHeading := make(map[string]int, len(t.Columns))
	for i, col := range t.Columns {
		heading := strings.ToLower(sanitize(col))
		if _, seen := byHeading[heading]; !seen {
			byHeading[heading] = i
		}
	}

	resolved := make(map[string]int, len(required))
	var missing []string
	for _, field := range required {
		idx, ok := -1, false
		for _, alias := range aliases[field] {
			if i, found := byHeading[strings.ToLower(alias)]; found {
				idx, ok = i, true
				break
			}
		}
		if !ok {
			missing = append(missing, field)
			continue
		}
		resolved[field] = idx
	}

	if len(missing) > 0 {
		return nil, &quota.SchemaError{Source: source, Missing: missing}
	}
	return resolved, nil
}

// =============================================================================
// SANITIZATION
// =============================================================================

// sanitize drops invalid UTF-8 bytes and trims whitespace.
func sanitize(s string) string {
	return strings.TrimSpace(strings.ToValidUTF8(s, ""))
}

// canonicalID sanitizes and lower-cases an identifier.
func canonicalID(s string) string {
	return strings.ToLower(sanitize(s))
}

func cell(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

func blankRow(row []string) bool {
	for _, c := range row {
		if sanitize(c) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// DELIVERY PARSING
// =============================================================================

// ParseDeliveries turns a raw delivery table into canonical records.
// The exporter name comes from the submission, not the file, and is
// stamped on every row. Blank rows are skipped.
func ParseDeliveries(t Table, exporterName string) ([]quota.DeliveryRecord, error) {
	cols, err := resolveColumns(t, DeliveryAliases,
		[]string{FieldFarmerID, FieldDeliveredKg, FieldLotNumber}, "deliveries")
	if err != nil {
		return nil, err
	}

	exporter := sanitize(exporterName)
	records := make([]quota.DeliveryRecord, 0, len(t.Rows))
	for i, row := range t.Rows {
		if blankRow(row) {
			continue
		}

		farmerID := canonicalID(cell(row, cols[FieldFarmerID]))
		if farmerID == "" {
			return nil, &quota.ValueError{
				Source: "deliveries", Row: i + 1, Field: FieldFarmerID,
				Value: cell(row, cols[FieldFarmerID]), Reason: "empty identifier",
			}
		}

		kg, err := parseMass(cell(row, cols[FieldDeliveredKg]), "deliveries", i+1, FieldDeliveredKg)
		if err != nil {
			return nil, err
		}

		records = append(records, quota.DeliveryRecord{
			LotNumber:    sanitize(cell(row, cols[FieldLotNumber])),
			ExporterName: exporter,
			FarmerID:     quota.FarmerID(farmerID),
			DeliveredKg:  kg,
		})
	}
	return records, nil
}

// =============================================================================
// FARMER REGISTER PARSING
// =============================================================================

// ParseFarmers turns a raw register table into canonical records.
func ParseFarmers(t Table) ([]quota.FarmerRecord, error) {
	cols, err := resolveColumns(t, FarmerAliases,
		[]string{FieldFarmerID, FieldAreaHa}, "farmers")
	if err != nil {
		return nil, err
	}

	records := make([]quota.FarmerRecord, 0, len(t.Rows))
	for i, row := range t.Rows {
		if blankRow(row) {
			continue
		}

		farmerID := canonicalID(cell(row, cols[FieldFarmerID]))
		if farmerID == "" {
			return nil, &quota.ValueError{
				Source: "farmers", Row: i + 1, Field: FieldFarmerID,
				Value: cell(row, cols[FieldFarmerID]), Reason: "empty identifier",
			}
		}

		area, err := parseMass(cell(row, cols[FieldAreaHa]), "farmers", i+1, FieldAreaHa)
		if err != nil {
			return nil, err
		}

		records = append(records, quota.FarmerRecord{
			ID:     quota.FarmerID(farmerID),
			AreaHa: area,
		})
	}
	return records, nil
}

// parseMass parses a non-negative decimal field. Comma decimal
// separators are accepted since the sources are often French locale.
func parseMass(raw, source string, row int, field string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(sanitize(raw), ",", ".")
	if cleaned == "" {
		cleaned = "0"
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, &quota.ValueError{
			Source: source, Row: row, Field: field, Value: raw,
			Reason: "not a number",
		}
	}
	if d.IsNegative() {
		return decimal.Zero, &quota.ValueError{
			Source: source, Row: row, Field: field, Value: raw,
			Reason: "must be non-negative",
		}
	}
	return d, nil
}
