// Package health provides the operational HTTP endpoints: liveness,
// run status and Prometheus metrics.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/starsort/internal/classify/job"
)

// Checker reports the health of one dependency.
type Checker interface {
	Health(ctx context.Context) error
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	orchestrator *job.Orchestrator
	db           Checker
	cache        Checker
	server       *http.Server
}

// NewServer creates a new ops server. cache may be nil.
func NewServer(orchestrator *job.Orchestrator, db, cache Checker, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		orchestrator: orchestrator,
		db:           db,
		cache:        cache,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if err := s.db.Health(r.Context()); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if s.cache != nil {
		if err := s.cache.Health(r.Context()); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.orchestrator.Snapshot())
}
