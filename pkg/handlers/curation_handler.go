package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/curation-engine/pkg/apperrors"
	"github.com/ekaya-inc/curation-engine/pkg/services"
)

// CurationHandler exposes the curation pipeline over HTTP: triggering a
// curation request for a record and reading back cached job snapshots.
type CurationHandler struct {
	curation services.CurationService
	logger   *zap.Logger
}

func NewCurationHandler(curation services.CurationService, logger *zap.Logger) *CurationHandler {
	return &CurationHandler{
		curation: curation,
		logger:   logger.Named("curation-handler"),
	}
}

// RegisterRoutes registers the curation routes on the given mux.
func (h *CurationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/curation/{oid}", h.RequestCuration)
	mux.HandleFunc("GET /api/jobs/{id}/snapshot", h.GetSnapshot)
}

// RequestCuration handles POST /api/curation/{oid}.
// Resolves the record's relationship graph, submits it to the curation
// manager and returns the persisted tracking job.
func (h *CurationHandler) RequestCuration(w http.ResponseWriter, r *http.Request) {
	oid := r.PathValue("oid")
	if oid == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_oid", "record oid is required")
		return
	}

	job, err := h.curation.RequestCuration(r.Context(), oid)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = ErrorResponse(w, http.StatusNotFound, "record_not_found", "no record with oid "+oid)
			return
		}
		h.logger.Error("curation request failed",
			zap.String("oid", oid),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusBadGateway, "curation_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, job); err != nil {
		h.logger.Error("Failed to encode job response", zap.Error(err))
	}
}

// GetSnapshot handles GET /api/jobs/{id}/snapshot.
// Returns the last raw status payload the poller cached for the job.
func (h *CurationHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_job_id", "job id must be a UUID")
		return
	}

	snapshot, err := h.curation.GetSnapshot(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = ErrorResponse(w, http.StatusNotFound, "snapshot_not_found", "no snapshot for job "+jobID.String())
			return
		}
		h.logger.Error("failed to read job snapshot",
			zap.String("job_id", jobID.String()),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "snapshot_read_failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(snapshot)
}
