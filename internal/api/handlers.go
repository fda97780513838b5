package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/catalog-scraper/internal/jobs"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/storage"
)

const (
	outboxPendingWarning  = 1000
	outboxDeadLetterError = 100
)

// RunService is implemented by jobs.Manager.
type RunService interface {
	StartRun(req jobs.RunRequest) (*models.Run, error)
	GetRun(id string) (*models.Run, error)
	ListRuns() []*models.Run
	GetRunProducts(ctx context.Context, id string) ([]models.ProductRecord, error)
	GetStats() *jobs.Stats
	Stores() []models.StoreContext
}

// OutboxStats reports outbox events per status.
type OutboxStats interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type Handlers struct {
	runs   RunService
	outbox OutboxStats
	logger *slog.Logger
}

// NewHandlers builds the API handlers. outbox may be nil when no database
// is configured.
func NewHandlers(runs RunService, outbox OutboxStats, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		runs:   runs,
		outbox: outbox,
		logger: logger.With("component", "api"),
	}
}

type CreateRunResponse struct {
	RunID      string           `json:"run_id"`
	Status     models.RunStatus `json:"status"`
	ReportPath string           `json:"report_path"`
	Message    string           `json:"message"`
}

// CreateRun starts a crawl in the background. The body is optional.
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req jobs.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := h.runs.StartRun(req)
	switch {
	case errors.Is(err, jobs.ErrNoStores):
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, jobs.ErrClosed):
		h.respondError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	case err != nil:
		h.logger.Error("failed to start run", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateRunResponse{
		RunID:      run.ID,
		Status:     run.Status,
		ReportPath: run.ReportPath,
		Message:    "Run started",
	})
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.GetRun(chi.URLParam(r, "runID"))
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.runs.ListRuns())
}

func (h *Handlers) GetRunProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.runs.GetRunProducts(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, products)
}

// ListStores returns the configured store contexts, optionally for one city.
func (h *Handlers) ListStores(w http.ResponseWriter, r *http.Request) {
	stores := models.FilterByCity(h.runs.Stores(), r.URL.Query().Get("city"))
	if stores == nil {
		stores = []models.StoreContext{}
	}
	h.respondJSON(w, http.StatusOK, stores)
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.runs.GetStats())
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
	}
	status := http.StatusOK

	if h.outbox != nil {
		counts, err := h.outbox.CountByStatus(r.Context())
		if err != nil {
			h.logger.Error("failed to read outbox", "error", err)
			h.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":  "error",
				"message": "database unavailable",
			})
			return
		}

		pending := counts["pending"] + counts["failed"]
		deadLetter := counts["dead_letter"]
		health["outbox"] = map[string]int64{
			"pending":     pending,
			"dead_letter": deadLetter,
		}

		if pending > outboxPendingWarning {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetter > outboxDeadLetterError {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondRunError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrRunNotFound) {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	h.logger.Error("failed to load run", "error", err)
	h.respondError(w, http.StatusInternalServerError, "failed to load run")
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
