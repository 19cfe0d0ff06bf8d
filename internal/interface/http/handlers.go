package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lksh/markboard/internal/application/query"
	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/lksh/markboard/internal/infrastructure/export"
	"github.com/lksh/markboard/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":        "markboard",
		"version":     s.config.Version,
		"description": "Marks computed from the ejudge standings of the summer school",
		"endpoints": map[string]string{
			"health":    "/health",
			"results":   "/api/v1/results",
			"csv":       "/api/v1/results.csv",
			"personal":  "/api/v1/results/{ejid}",
			"snapshots": "/api/v1/snapshots",
		},
	}

	writeData(w, r, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeData(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeData(w, r, http.StatusOK, status)
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeData(w, r, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": status.Message,
		})
		return
	}

	writeData(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULTS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetResults handles GET /api/v1/results.
// The body is the bare results array.
func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	if s.deps.Results == nil {
		writeNotImplemented(w, "Results handler not configured")
		return
	}

	results, err := s.deps.Results.Handle(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "get results", err)
		return
	}

	w.Header().Set("Content-Type", export.JSONContentType)
	w.WriteHeader(http.StatusOK)
	if err := export.EncodeResults(w, results); err != nil {
		s.logger.Error("failed to write results", logger.Err(err))
	}
}

// handleGetResultsCSV handles GET /api/v1/results.csv.
func (s *Server) handleGetResultsCSV(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ranked == nil {
		writeNotImplemented(w, "Ranked export handler not configured")
		return
	}

	rows, err := s.deps.Ranked.Handle(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "get ranked rows", err)
		return
	}

	w.Header().Set("Content-Type", export.CSVContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.DefaultCSVFile+`"`)
	w.WriteHeader(http.StatusOK)
	if err := export.WriteCSV(w, rows); err != nil {
		s.logger.Error("failed to write csv", logger.Err(err))
	}
}

// handleGetPersonalResult handles GET /api/v1/results/{ejid}.
// A missing student answers 404 with the {"error": ...} payload.
func (s *Server) handleGetPersonalResult(w http.ResponseWriter, r *http.Request) {
	if s.deps.Personal == nil {
		writeNotImplemented(w, "Personal result handler not configured")
		return
	}

	ejid, err := shared.ParseEJID(chi.URLParam(r, "ejid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_ejid", "ejid must be an integer")
		return
	}

	dto, err := s.deps.Personal.Handle(r.Context(), query.GetPersonalResultQuery{EJID: ejid})
	if err != nil {
		s.writeDomainError(w, r, "get personal result", err)
		return
	}

	status := http.StatusOK
	if !dto.Found {
		status = http.StatusNotFound
	}

	w.Header().Set("Content-Type", export.JSONContentType)
	w.WriteHeader(status)
	if err := export.EncodePersonal(w, dto.Payload()); err != nil {
		s.logger.Error("failed to write personal result", logger.Err(err), logger.EJID(ejid.Int()))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT HISTORY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListSnapshots handles GET /api/v1/snapshots?limit=N.
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.deps.Snapshots == nil {
		writeNotImplemented(w, "Snapshot history not configured")
		return
	}

	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
		return
	}

	summaries, err := s.deps.Snapshots.Handle(r.Context(), query.ListSnapshotsQuery{Limit: limit})
	if err != nil {
		s.writeDomainError(w, r, "list snapshots", err)
		return
	}

	writeList(w, r, summaries, len(summaries))
}

// handleGetSnapshotResults handles GET /api/v1/snapshots/{id}/results.
func (s *Server) handleGetSnapshotResults(w http.ResponseWriter, r *http.Request) {
	if s.deps.SnapshotResults == nil {
		writeNotImplemented(w, "Snapshot history not configured")
		return
	}

	results, err := s.deps.SnapshotResults.Handle(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		s.writeDomainError(w, r, "get snapshot results", err)
		return
	}

	w.Header().Set("Content-Type", export.JSONContentType)
	w.WriteHeader(http.StatusOK)
	if err := export.EncodeResults(w, results); err != nil {
		s.logger.Error("failed to write snapshot results", logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRefresh handles POST /api/v1/refresh: runs a sync right away.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sync == nil {
		writeNotImplemented(w, "Sync handler not configured")
		return
	}

	result, err := s.deps.Sync.Handle(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "refresh standings", err)
		return
	}

	s.requestLog(r).Info("standings refreshed via API",
		logger.SnapshotID(result.SnapshotID),
		logger.Students(result.Students),
	)

	writeData(w, r, http.StatusOK, result)
}

// handleListJobs handles GET /api/v1/jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeNotImplemented(w, "Scheduler not configured")
		return
	}

	jobs := s.deps.Jobs.ListJobs()
	writeList(w, r, jobs, len(jobs))
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// errorStatus maps an application error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, shared.ErrInProgress):
		return http.StatusConflict, "sync_in_progress"
	case errors.Is(err, shared.ErrEmptyStandings), shared.IsExternalService(err):
		return http.StatusBadGateway, "upstream_error"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeDomainError logs the error and writes the mapped envelope.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := errorStatus(err)

	log := s.requestLog(r)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", logger.Operation(op), logger.Int("status", status), logger.Err(err))
	} else {
		log.Warn("request rejected", logger.Operation(op), logger.Int("status", status), logger.Err(err))
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "An unexpected error occurred"
	}
	writeError(w, status, code, message)
}

// queryInt reads an integer query parameter. ok is false when the
// parameter is present but not a number.
func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def, false
	}
	return n, true
}
