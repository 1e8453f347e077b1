package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/anstrom/scanvault/internal/archive"
	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/services"
)

// HealthResponse reports the state of the server's dependencies.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// indexHandler lists the entry points.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"service": "scanvault",
		"version": s.version,
		"endpoints": map[string]string{
			"health": "/api/v1/health",
			"scans":  "/api/v1/scans",
			"hosts":  "/api/v1/hosts",
			"rpc":    "/rpc",
			"docs":   "/swagger/",
		},
	})
}

// livenessHandler godoc
// @Summary Liveness check
// @Description Reports that the process is serving requests
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /liveness [get]
// @ID getLiveness
func (s *Server) livenessHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
	})
}

// healthHandler pings the store and, when configured, the archive.
// @Summary Health check
// @Description Pings the store and the archive
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
// @ID getHealth
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Checks:    map[string]string{},
	}

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Checks[name] = "failed: " + err.Error()
			return
		}
		response.Checks[name] = "ok"
	}

	check("store", s.store.Ping)
	if s.archive != nil {
		check("archive", s.archive.Ping)
	} else {
		response.Checks["archive"] = "not configured"
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, status, response)
}

// versionHandler godoc
// @Summary Version information
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /version [get]
// @ID getVersion
func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"service":   "scanvault",
		"version":   s.version,
		"timestamp": time.Now().UTC(),
	})
}

// uploadScanHandler stores the nmap XML report sent as the request body.
// @Summary Upload a report
// @Description Parses the nmap XML report in the body and stores the scan
// @Tags Scans
// @Accept xml
// @Produce json
// @Param report body string true "nmap XML report"
// @Success 201 {object} services.Outcome
// @Failure 413 {object} ErrorResponse
// @Failure 415 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /scans [post]
// @ID uploadScan
func (s *Server) uploadScanHandler(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxRequestSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	}

	outcome, err := s.ingest.IngestReader(r.Context(), services.SourceAPI, r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/scans/"+outcome.ScanID)
	s.writeJSON(w, r, http.StatusCreated, outcome)
}

// listScansHandler godoc
// @Summary List scans
// @Tags Scans
// @Produce json
// @Param page_number query int false "Zero-based page number" default(0)
// @Param items_per_page query int false "Items per page" default(50) maximum(500)
// @Param sort_column query string false "Sort column" default(started)
// @Param sort_ascending query bool false "Ascending order"
// @Success 200 {object} storage.PageResult[storage.ScanSummary]
// @Failure 400 {object} ErrorResponse
// @Router /scans [get]
// @ID listScans
func (s *Server) listScansHandler(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.store.ListScans(r.Context(), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, result)
}

// getScanHandler godoc
// @Summary Get a scan
// @Tags Scans
// @Produce json
// @Param id path string true "Scan ID"
// @Success 200 {object} storage.ScanSummary
// @Failure 404 {object} ErrorResponse
// @Router /scans/{id} [get]
// @ID getScan
func (s *Server) getScanHandler(w http.ResponseWriter, r *http.Request) {
	scan, err := s.store.GetScan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, scan)
}

// getReportHandler returns the archived raw report of a scan.
// @Summary Download the raw report
// @Tags Scans
// @Produce xml
// @Param id path string true "Scan ID"
// @Success 200 {string} string
// @Failure 404 {object} ErrorResponse
// @Router /scans/{id}/report [get]
// @ID getReport
func (s *Server) getReportHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.archive == nil {
		s.writeError(w, r, errors.ErrNotFound("report", id))
		return
	}

	document, err := s.archive.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", archive.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(document); err != nil {
		s.logger.WithScanID(id).Debug("Report download interrupted", "error", err)
	}
}

// listHostsHandler godoc
// @Summary List hosts
// @Tags Hosts
// @Produce json
// @Param page_number query int false "Zero-based page number" default(0)
// @Param items_per_page query int false "Items per page" default(50) maximum(500)
// @Param sort_column query string false "Sort column" default(started) Enums(started,completed,state)
// @Param sort_ascending query bool false "Ascending order"
// @Success 200 {object} storage.PageResult[storage.HostSummary]
// @Failure 400 {object} ErrorResponse
// @Router /hosts [get]
// @ID listHosts
func (s *Server) listHostsHandler(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.store.ListHosts(r.Context(), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, result)
}

// getHostHandler godoc
// @Summary Get a host
// @Description Returns the host with its ports, scripts and OS matches
// @Tags Hosts
// @Produce json
// @Param id path string true "Host ID"
// @Success 200 {object} storage.HostDetail
// @Failure 404 {object} ErrorResponse
// @Router /hosts/{id} [get]
// @ID getHost
func (s *Server) getHostHandler(w http.ResponseWriter, r *http.Request) {
	host, err := s.store.GetHost(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, host)
}
