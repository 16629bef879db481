// Package api serves the HTTP dashboard API: run history, task detail,
// and a server-sent event stream of run progress.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/groundctl/ground-control/internal/domain"
)

// Store interface for database operations
type Store interface {
	ListRuns(projectName string, limit int) ([]*domain.Run, error)
	RunSummary(runID string) (*domain.RunSummary, error)
	ListTasks(runID string) ([]*domain.Task, error)
	GetTask(id string) (*domain.Task, error)
	GetLogs(taskID string) ([]*domain.LogEntry, error)
}

// Server is the HTTP API server
type Server struct {
	store  Store
	addr   string
	mux    *http.ServeMux
	sseHub *SSEHub
}

// NewServer creates a new API server
func NewServer(store Store, addr string) *Server {
	s := &Server{
		store:  store,
		addr:   addr,
		mux:    http.NewServeMux(),
		sseHub: NewSSEHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/api/runs/", s.getRunHandler())
	s.mux.HandleFunc("/api/tasks/", s.taskHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the SSE hub and serves HTTP until the listener fails
func (s *Server) Start() error {
	go s.sseHub.Run()
	return http.ListenAndServe(s.addr, s.mux)
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

// WatchRun periodically broadcasts the run's summary to SSE clients until
// the context is cancelled or the run reaches a terminal status.
func (s *Server) WatchRun(ctx context.Context, runID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := s.store.RunSummary(runID)
			if err != nil {
				continue
			}
			s.Broadcast(SSEEvent{Type: "run_update", Data: summaryToResponse(summary)})
			if summary.Run.Status == domain.RunCompleted || summary.Run.Status == domain.RunFailed {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
