/*
handlers.go - HTTP API handlers for the quota verification system

PURPOSE:
  Exposes the reconciliation engine via REST API. Handles HTTP
  request/response, JSON and multipart decoding, and delegates to the
  reconciler, recorder, and ledger store.

ENDPOINTS:
  Batches:
    POST   /api/batches                 Submit a delivery batch (multipart)
    POST   /api/batches/approve         Record approval for an assessed scope

  Review:
    GET    /api/quota                   Quota overview for the whole register
    GET    /api/approvals               Approval log
    GET    /api/approvals/artifacts/{name}  Download an approval document

  Register:
    POST   /api/register                Load a new farmer register (multipart)

  Admin (gated by shared secrets; a placeholder, not a security boundary):
    GET    /api/admin/deliveries        Raw ledger view
    GET    /api/admin/approvals         Raw approval log view
    POST   /api/admin/wipe              Irreversible wipe (two secrets)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: schema errors, invalid values, empty/mixed batches
  - 401: missing or wrong admin secret
  - 404: unknown scope or artifact
  - 409: approval requested for a rejected batch
  - 503: ledger store unavailable (retry the whole submission)
  Every rejection names the offending farmer IDs or missing fields.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cloudia/quota-engine/adapter"
	"github.com/cloudia/quota-engine/quota"
	"github.com/cloudia/quota-engine/reconcile"
)

const maxUploadBytes = 32 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Config carries handler settings.
type Config struct {
	ArtifactDir string

	// Two independent shared secrets gate the administrative surface.
	// Placeholder authorization: a real deployment replaces this.
	AdminSecret  string
	AdminConfirm string
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      quota.LedgerStore
	Reconciler *reconcile.Reconciler
	Recorder   *reconcile.Recorder

	cfg Config
	log *zap.Logger

	mu       sync.RWMutex
	register *quota.Register
	// Last assessed result per scope key; approval recording requires
	// a fresh assessment of the exact scope.
	results map[string]*reconcile.Result
}

// NewHandler creates a handler around a ledger store and a register.
func NewHandler(store quota.LedgerStore, register *quota.Register, cfg Config, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:      store,
		Reconciler: reconcile.New(store, log),
		Recorder:   reconcile.NewRecorder(store, cfg.ArtifactDir, log),
		cfg:        cfg,
		log:        log,
		register:   register,
		results:    make(map[string]*reconcile.Result),
	}
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// SubmitBatch reconciles one uploaded delivery file.
// POST /api/batches  (multipart: "deliveries" file, "exporter_name" field)
func (h *Handler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}

	exporter := strings.TrimSpace(r.FormValue("exporter_name"))
	if exporter == "" {
		writeError(w, http.StatusBadRequest, "exporter_name is required", nil)
		return
	}

	file, header, err := r.FormFile("deliveries")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing 'deliveries' file", err)
		return
	}
	defer file.Close()

	table, err := adapter.ReadTable(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unreadable delivery file", err)
		return
	}

	records, err := adapter.ParseDeliveries(table, exporter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.mu.RLock()
	register := h.register
	h.mu.RUnlock()

	res, err := h.Reconciler.Submit(r.Context(), register, records)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.mu.Lock()
	h.results[res.Scope.Key()] = res
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, toReconciliationDTO(res))
}

// ApproveBatch records approval for a previously assessed scope.
// POST /api/batches/approve
func (h *Handler) ApproveBatch(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.LotNumbers) == 0 || strings.TrimSpace(req.ExporterName) == "" {
		writeError(w, http.StatusBadRequest, "lot_numbers and exporter_name are required", nil)
		return
	}

	lots := append([]string(nil), req.LotNumbers...)
	sort.Strings(lots)
	scope := quota.Scope{LotNumbers: lots, ExporterName: strings.TrimSpace(req.ExporterName)}

	h.mu.RLock()
	res, ok := h.results[scope.Key()]
	h.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, "No assessed batch for this scope; submit it first", nil)
		return
	}
	if !res.Approved {
		writeError(w, http.StatusConflict,
			"Batch did not pass validation; correct the source data and resubmit", nil)
		return
	}

	ref, err := h.Recorder.RecordApproval(r.Context(), res)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ArtifactDTO{FileName: ref.FileName})
}

// =============================================================================
// REVIEW HANDLERS
// =============================================================================

// QuotaOverview returns the merged register + ledger view for every
// registered farmer.
// GET /api/quota
func (h *Handler) QuotaOverview(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	register := h.register
	h.mu.RUnlock()

	totals, err := h.Store.AggregateByFarmer(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	all := make(map[quota.FarmerID]bool, register.Len())
	for _, id := range register.IDs() {
		all[id] = true
	}

	writeJSON(w, http.StatusOK, toAssessmentDTOs(quota.Assess(register, totals, all)))
}

// ListApprovals returns the approval log.
// GET /api/approvals
func (h *Handler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListApprovals(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ApprovalDTO, len(records))
	for i, rec := range records {
		dtos[i] = toApprovalDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DownloadArtifact serves an approval document by file name.
// GET /api/approvals/artifacts/{name}
func (h *Handler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		writeError(w, http.StatusBadRequest, "Invalid artifact name", nil)
		return
	}

	path := filepath.Join(h.cfg.ArtifactDir, name)
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	http.ServeFile(w, r, path)
}

// =============================================================================
// REGISTER HANDLERS
// =============================================================================

// LoadRegister replaces the in-memory farmer register from an uploaded
// file. The register is immutable during any single reconciliation run.
// POST /api/register  (multipart: "farmers" file)
func (h *Handler) LoadRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}

	file, header, err := r.FormFile("farmers")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing 'farmers' file", err)
		return
	}
	defer file.Close()

	table, err := adapter.ReadTable(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unreadable farmer register", err)
		return
	}

	records, err := adapter.ParseFarmers(table)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	register := quota.NewRegister(records)
	h.mu.Lock()
	h.register = register
	h.mu.Unlock()

	h.log.Info("farmer register loaded", zap.Int("farmers", register.Len()))
	writeJSON(w, http.StatusOK, RegisterDTO{FarmerCount: register.Len()})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// AdminDeliveries returns every ledger row.
// GET /api/admin/deliveries
func (h *Handler) AdminDeliveries(w http.ResponseWriter, r *http.Request) {
	if !h.adminAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "Admin secret required", nil)
		return
	}

	records, err := h.Store.ListDeliveries(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]DeliveryDTO, len(records))
	for i, rec := range records {
		dtos[i] = toDeliveryDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AdminApprovals returns the raw approval log.
// GET /api/admin/approvals
func (h *Handler) AdminApprovals(w http.ResponseWriter, r *http.Request) {
	if !h.adminAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "Admin secret required", nil)
		return
	}
	h.ListApprovals(w, r)
}

// AdminWipe irreversibly deletes all delivery and approval rows. Both
// secrets must be presented independently.
// POST /api/admin/wipe
func (h *Handler) AdminWipe(w http.ResponseWriter, r *http.Request) {
	if !h.adminAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "Admin secret required", nil)
		return
	}
	if h.cfg.AdminConfirm == "" || r.Header.Get("X-Admin-Confirm") != h.cfg.AdminConfirm {
		writeError(w, http.StatusUnauthorized, "Wipe confirmation secret required", nil)
		return
	}

	if err := h.Store.ClearAll(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}

	h.mu.Lock()
	h.results = make(map[string]*reconcile.Result)
	h.mu.Unlock()

	h.log.Warn("ledger wiped by administrator")
	w.WriteHeader(http.StatusNoContent)
}

// adminAuthorized checks the first shared secret. Placeholder gate:
// documented as not a security boundary.
func (h *Handler) adminAuthorized(r *http.Request) bool {
	return h.cfg.AdminSecret != "" && r.Header.Get("X-Admin-Secret") == h.cfg.AdminSecret
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP statuses. Client errors
// carry the full message so the user sees which fields or farmers are
// at fault.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case quota.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Batch rejected", err)
	case errors.Is(err, quota.ErrNotApproved):
		writeError(w, http.StatusConflict, "Batch is not approved", err)
	case errors.Is(err, quota.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable,
			"Ledger unavailable; nothing was persisted, retry the submission", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
