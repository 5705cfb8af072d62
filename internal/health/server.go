package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/keeper/internal/core/domain"
)

// Server exposes health status and Prometheus metrics over HTTP.
type Server struct {
	monitor *Monitor
	server  *http.Server
}

// NewServer creates the HTTP server on the given port.
func NewServer(monitor *Monitor, port int) *Server {
	s := &Server{monitor: monitor}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.HandleFunc("/health/reset-stats", s.handleResetStats)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	slog.Info("health server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.monitor.Overall()

	code := http.StatusOK
	if status == domain.HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := struct {
		Status       domain.HealthStatus `json:"status"`
		Checks       map[string]Result   `json:"checks"`
		ActiveAlerts []domain.Alert      `json:"active_alerts"`
		Stats        StatsSnapshot       `json:"stats"`
	}{
		Status:       s.monitor.Overall(),
		Checks:       s.monitor.Results(),
		ActiveAlerts: s.monitor.Alerts().Active(),
		Stats:        s.monitor.Stats(),
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.monitor.ResetStats()
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}
