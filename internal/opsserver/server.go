// Package opsserver serves the operator endpoints of the worker manager:
// liveness, readiness, Prometheus metrics and application record lookup.
package opsserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"license-verification/internal/common/database"
	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/common/logger"
	"license-verification/internal/models"
	"license-verification/internal/recordstore"
)

const readyTimeout = 3 * time.Second

type Server struct {
	store  recordstore.Store
	checks []database.Pinger
	logger logger.Logger
}

// New builds the server. store may be nil, in which case record lookup
// answers 503.
func New(store recordstore.Store, checks []database.Pinger, log logger.Logger) *Server {
	return &Server{
		store:  store,
		checks: checks,
		logger: log.WithFields(map[string]interface{}{"component": "opsserver"}),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/applications/{id}", s.handleGetApplication)
	return r
}

// NewHTTPServer wraps the router with the server defaults.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := database.PingAll(r.Context(), readyTimeout, s.checks...); err != nil {
		s.logger.Warn("readiness check failed", map[string]interface{}{"error": err.Error()})
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

type applicationResponse struct {
	*models.Record
	Status   models.Status `json:"status"`
	Verified bool          `json:"verified"`
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "record store not configured"})
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "application not found", "applicationId": id})
			return
		}
		s.logger.Error("record lookup failed", map[string]interface{}{"applicationId": id, "error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "record lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, applicationResponse{
		Record:   rec,
		Status:   rec.Status(),
		Verified: rec.Verified(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
