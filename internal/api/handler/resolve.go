package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/tikgrabba/internal/domain"
	"github.com/iconidentify/tikgrabba/internal/service"
)

// ResolveHandler handles resolve jobs, history and flavor listing.
type ResolveHandler struct {
	svc    *service.ResolveService
	logger *slog.Logger
}

// NewResolveHandler creates a new resolve handler.
func NewResolveHandler(svc *service.ResolveService, logger *slog.Logger) *ResolveHandler {
	return &ResolveHandler{
		svc:    svc,
		logger: logger,
	}
}

// ResolveRequest is the JSON request body for POST /api/v1/resolve.
type ResolveRequest struct {
	URL    string `json:"url"`
	Flavor string `json:"flavor,omitempty"`
}

// JobResponse represents a job in get responses.
type JobResponse struct {
	JobID      string         `json:"job_id"`
	Reference  string         `json:"reference"`
	Flavor     string         `json:"flavor"`
	Status     string         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	Error      string         `json:"error,omitempty"`
	Report     *domain.Report `json:"report,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// HistoryResponse wraps recent history entries.
type HistoryResponse struct {
	Entries []domain.HistoryEntry `json:"entries"`
	Limit   int                   `json:"limit"`
}

// FlavorsResponse lists the accepted resolver flavors.
type FlavorsResponse struct {
	Flavors []string `json:"flavors"`
	Default string   `json:"default"`
}

// Submit handles POST /api/v1/resolve
func (h *ResolveHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Submit(r.Context(), service.SubmitRequest{
		Reference: domain.MediaReference(req.URL),
		Flavor:    req.Flavor,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidReference) {
			h.writeError(w, http.StatusBadRequest, "invalid media URL")
			return
		}
		if errors.Is(err, domain.ErrUnknownFlavor) {
			h.writeError(w, http.StatusBadRequest, "unknown resolver flavor")
			return
		}
		h.logger.Error("submit failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	h.writeJSON(w, http.StatusAccepted, result)
}

// GetJob handles GET /api/v1/jobs/{jobID}
func (h *ResolveHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "job ID required")
		return
	}

	job, err := h.svc.GetJob(r.Context(), domain.JobID(jobID))
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			h.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("get job failed", "job_id", jobID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	h.writeJSON(w, http.StatusOK, JobResponse{
		JobID:      job.ID.String(),
		Reference:  job.Reference.String(),
		Flavor:     job.Flavor,
		Status:     string(job.Status),
		Attempts:   job.Attempts,
		MaxRetries: job.MaxRetries,
		Error:      job.LastError,
		Report:     job.Report,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	})
}

// History handles GET /api/v1/history
func (h *ResolveHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	entries, err := h.svc.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("list history failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	h.writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries, Limit: limit})
}

// Flavors handles GET /api/v1/flavors
func (h *ResolveHandler) Flavors(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, FlavorsResponse{
		Flavors: h.svc.Flavors(),
		Default: h.svc.DefaultFlavor(),
	})
}

func (h *ResolveHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *ResolveHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
