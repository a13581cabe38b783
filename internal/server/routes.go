package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // Handles /api/jobs/{id} and subpaths

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute dispatches the collection endpoint by method
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.JobHandler.SubmitJobHandler(w, r)
	case http.MethodGet:
		s.app.JobHandler.ListJobsHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobRoutes dispatches /api/jobs/{id} and its subpaths
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// GET /api/jobs/{id}/status
	if r.Method == http.MethodGet && strings.HasSuffix(path, "/status") {
		s.app.JobHandler.GetStatusHandler(w, r)
		return
	}

	// GET /api/jobs/{id}/content
	if r.Method == http.MethodGet && strings.HasSuffix(path, "/content") {
		s.app.JobHandler.GetContentHandler(w, r)
		return
	}

	// DELETE /api/jobs/{id}
	if r.Method == http.MethodDelete {
		s.app.JobHandler.DeleteJobHandler(w, r)
		return
	}

	http.Error(w, "Not found", http.StatusNotFound)
}
