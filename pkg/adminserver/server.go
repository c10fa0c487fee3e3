// Copyright 2025 Alephnode Protocol
//
// Admin HTTP surface (spec.md 6): health, metrics, and pending-queue
// introspection is the only HTTP facade this core carries — the full
// submission/query REST API is out of scope. Handler shape (one
// struct per concern holding its dependencies and a logger, stdlib
// http.ServeMux, a writeJSONError helper) is the teacher's
// pkg/server pattern, repointed at pipeline introspection instead of
// proof/batch domain objects.

package adminserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/alephnode/ccn/pkg/config"
	"github.com/alephnode/ccn/pkg/database"
	"github.com/alephnode/ccn/pkg/metrics"
)

// Server serves /health, /metrics (both paths configurable), and
// /debug/pending.
type Server struct {
	httpServer *http.Server
	logger     *log.Logger
}

// New builds the admin server's mux and binds it to cfg.ListenAddr.
// Call Start to actually begin serving.
func New(cfg config.AdminSettings, db *database.Client, pending *database.PendingRepository, reg *metrics.Registry, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[Admin] ", log.LstdFlags)
	}

	h := &handlers{db: db, pending: pending, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc(healthPath(cfg), h.handleHealth)
	mux.HandleFunc("/debug/pending", h.handlePending)
	if reg != nil {
		mux.Handle(metricsPath(cfg), reg.Handler())
	}

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: mux,
		},
		logger: logger,
	}
}

func healthPath(cfg config.AdminSettings) string {
	if cfg.HealthPath == "" {
		return "/health"
	}
	return cfg.HealthPath
}

func metricsPath(cfg config.AdminSettings) string {
	if cfg.MetricsPath == "" {
		return "/metrics"
	}
	return cfg.MetricsPath
}

// Start begins serving in a background goroutine. Listen errors other
// than a clean shutdown are logged, not returned, matching the
// teacher's fire-and-forget admin HTTP goroutine.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("admin server stopped: %v", err)
		}
	}()
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type handlers struct {
	db      *database.Client
	pending *database.PendingRepository
	logger  *log.Logger
}

// handleHealth reports database connectivity: 200 with the health status
// when healthy, 503 with it when the client reports unhealthy, and 500
// when the check itself fails.
func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status, err := h.db.Health(r.Context())
	if err != nil {
		writeJSONError(w, "health check failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// handlePending reports the current pending-queue depth and a
// read-only sample of the oldest rows, for operator debugging.
func (h *handlers) handlePending(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	depth, err := h.pending.Count(ctx)
	if err != nil {
		writeJSONError(w, "failed to count pending messages", http.StatusInternalServerError)
		return
	}

	sample, err := h.pending.Peek(ctx, 50)
	if err != nil {
		writeJSONError(w, "failed to list pending messages", http.StatusInternalServerError)
		return
	}

	resp := struct {
		Depth     int                        `json:"depth"`
		Sample    []*database.PendingMessage `json:"sample"`
		CheckedAt time.Time                  `json:"checked_at"`
	}{Depth: depth, Sample: sample, CheckedAt: time.Now()}

	json.NewEncoder(w).Encode(resp)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
