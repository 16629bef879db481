package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/groundctl/ground-control/internal/domain"
	"github.com/groundctl/ground-control/internal/statestore"
)

// RunResponse is the API response for a run
type RunResponse struct {
	ID          string `json:"id"`
	ProjectName string `json:"project_name"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// TaskResponse is the API response for a task
type TaskResponse struct {
	ID            string   `json:"id"`
	RunID         string   `json:"run_id"`
	TicketID      string   `json:"ticket_id,omitempty"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	AssignedAgent string   `json:"assigned_agent,omitempty"`
	Status        string   `json:"status"`
	Priority      int      `json:"priority"`
	Dependencies  []string `json:"dependencies,omitempty"`
	Result        string   `json:"result,omitempty"`
}

// LogResponse is the API response for a task log entry
type LogResponse struct {
	AgentName string `json:"agent_name,omitempty"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// SummaryResponse is the API response for a run with task counts
type SummaryResponse struct {
	Run          RunResponse    `json:"run"`
	Tasks        []TaskResponse `json:"tasks"`
	TotalTasks   int            `json:"total_tasks"`
	StatusCounts map[string]int `json:"status_counts"`
}

func runToResponse(r *domain.Run) RunResponse {
	return RunResponse{
		ID:          r.ID,
		ProjectName: r.ProjectName,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   r.UpdatedAt.Format(time.RFC3339),
	}
}

func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:            t.ID,
		RunID:         t.RunID,
		TicketID:      t.TicketID,
		Title:         t.Title,
		Description:   t.Description,
		AssignedAgent: t.AssignedAgent,
		Status:        string(t.Status),
		Priority:      t.Priority,
		Dependencies:  t.Dependencies,
		Result:        t.Result,
	}
}

func summaryToResponse(s *domain.RunSummary) SummaryResponse {
	tasks := make([]TaskResponse, len(s.Tasks))
	for i, t := range s.Tasks {
		tasks[i] = taskToResponse(t)
	}
	counts := make(map[string]int, len(s.StatusCounts))
	for status, n := range s.StatusCounts {
		counts[string(status)] = n
	}
	return SummaryResponse{
		Run:          runToResponse(s.Run),
		Tasks:        tasks,
		TotalTasks:   s.TotalTasks,
		StatusCounts: counts,
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		project := r.URL.Query().Get("project")
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = parsed
		}

		runs, err := s.store.ListRuns(project, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]RunResponse, len(runs))
		for i, run := range runs {
			responses[i] = runToResponse(run)
		}
		writeJSON(w, responses)
	}
}

func (s *Server) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if runID == "" || strings.Contains(runID, "/") {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		summary, err := s.store.RunSummary(runID)
		if err != nil {
			if errors.Is(err, statestore.ErrNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, summaryToResponse(summary))
	}
}

// taskHandler serves /api/tasks/{id} and /api/tasks/{id}/logs
func (s *Server) taskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
		if path == "" {
			writeError(w, http.StatusBadRequest, "task ID required")
			return
		}

		taskID, wantLogs := path, false
		if rest, ok := strings.CutSuffix(path, "/logs"); ok {
			taskID, wantLogs = rest, true
		}
		if taskID == "" || strings.Contains(taskID, "/") {
			writeError(w, http.StatusBadRequest, "task ID required")
			return
		}

		if wantLogs {
			s.serveTaskLogs(w, taskID)
			return
		}

		task, err := s.store.GetTask(taskID)
		if err != nil {
			if errors.Is(err, statestore.ErrNotFound) {
				writeError(w, http.StatusNotFound, "task not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, taskToResponse(task))
	}
}

func (s *Server) serveTaskLogs(w http.ResponseWriter, taskID string) {
	logs, err := s.store.GetLogs(taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responses := make([]LogResponse, len(logs))
	for i, entry := range logs {
		responses[i] = LogResponse{
			AgentName: entry.AgentName,
			Level:     entry.Level,
			Message:   entry.Message,
			CreatedAt: entry.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, map[string]any{
		"task_id": taskID,
		"logs":    responses,
	})
}
